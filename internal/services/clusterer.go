package services

import (
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/geo"
)

// DefaultClusterRadiusKm is the seed radius used when callers pass <= 0.
const DefaultClusterRadiusKm = 2.0

// ClusterDeliveries groups points geographically with a greedy single pass.
//
// Each unvisited point seeds a new cluster and absorbs every later unvisited
// point within maxDistanceKm of the seed. Distances are measured to the seed
// only, not to other members, so the result depends on input order.
// This trades accuracy for a predictable O(n^2) pass over small stop lists.
func ClusterDeliveries(points []domain.DeliveryPoint, maxDistanceKm float64) [][]domain.DeliveryPoint {
	if maxDistanceKm <= 0 {
		maxDistanceKm = DefaultClusterRadiusKm
	}

	visited := make([]bool, len(points))
	clusters := make([][]domain.DeliveryPoint, 0)

	for i, seed := range points {
		if visited[i] {
			continue
		}
		visited[i] = true
		cluster := []domain.DeliveryPoint{seed}

		for j := i + 1; j < len(points); j++ {
			if visited[j] {
				continue
			}
			if geo.Distance(seed.Location, points[j].Location) <= maxDistanceKm {
				visited[j] = true
				cluster = append(cluster, points[j])
			}
		}
		clusters = append(clusters, cluster)
	}

	return clusters
}
