package geocoding

import (
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/httpx"
	"delivery-dispatch-service/internal/platform/obs"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const defaultORSBaseURL = "https://api.openrouteservice.org"

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// ORSGeocoder resolves addresses through the OpenRouteService
// /geocode/search endpoint. It is safe for concurrent use.
type ORSGeocoder struct {
	client  *httpx.Client
	apiKey  string
	baseURL string
	country string
}

func NewORSGeocoder(apiKey, baseURL, country string) (*ORSGeocoder, error) {
	if apiKey == "" {
		return nil, errors.New("ORS api key is empty")
	}
	if baseURL == "" {
		baseURL = defaultORSBaseURL
	}
	return &ORSGeocoder{
		client:  httpx.New(10*time.Second, 4, 200*time.Millisecond),
		apiKey:  apiKey,
		baseURL: baseURL,
		country: country,
	}, nil
}

func (o *ORSGeocoder) Resolve(ctx context.Context, address string) (_ domain.GeoPoint, err error) {
	defer obs.Time(ctx, "ors.geocode")(&err)

	norm := Normalize(address)
	if norm == "" {
		return domain.GeoPoint{}, domain.NotFound("address", address)
	}
	endpoint := o.baseURL + "/geocode/search"

	resp, err := o.client.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", o.apiKey)
		req.Header.Set("Accept", "application/json")
		q := req.URL.Query()
		q.Set("text", norm)
		if o.country != "" {
			q.Set("boundary.country", o.country)
		}
		q.Set("size", "1")
		req.URL.RawQuery = q.Encode()
		return req, nil
	})
	if err != nil {
		return domain.GeoPoint{}, fmt.Errorf("geocode %q: %w", norm, err)
	}
	defer resp.Body.Close()

	var decoded geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.GeoPoint{}, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(decoded.Features) == 0 {
		return domain.GeoPoint{}, domain.NotFound("address", norm)
	}

	coords := decoded.Features[0].Geometry.Coordinates
	if len(coords) != 2 {
		return domain.GeoPoint{}, fmt.Errorf("invalid coordinate format for %q", norm)
	}

	// ORS returns [lon, lat].
	return domain.GeoPoint{Lat: coords[1], Lng: coords[0]}, nil
}
