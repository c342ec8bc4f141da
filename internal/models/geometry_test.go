package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

const farmPolygon = `{"type":"Polygon","coordinates":[[[-95.5,30.2],[-95.4,30.2],[-95.4,30.3],[-95.5,30.3],[-95.5,30.2]]]}`

// TestMultiPolygonImplementsInterfaces verifies MultiPolygon implements required interfaces
func TestMultiPolygonImplementsInterfaces(t *testing.T) {
	var _ driver.Valuer = MultiPolygon{}
	var _ json.Marshaler = MultiPolygon{}

	var mp MultiPolygon
	var scanner interface{} = &mp
	if _, ok := scanner.(interface{ Scan(interface{}) error }); !ok {
		t.Error("MultiPolygon does not implement sql.Scanner interface")
	}
}

// TestMultiPolygonScan tests the Scan method (reading ST_AsGeoJSON output)
func TestMultiPolygonScan(t *testing.T) {
	tests := []struct {
		name      string
		input     interface{}
		wantError bool
		wantParts int
	}{
		{
			name:  "nil value",
			input: nil,
		},
		{
			name:      "polygon is promoted",
			input:     []byte(farmPolygon),
			wantParts: 1,
		},
		{
			name:      "multipolygon as text",
			input:     `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]],[[[2,2],[3,2],[3,3],[2,2]]]]}`,
			wantParts: 2,
		},
		{
			name:      "invalid JSON",
			input:     []byte(`{invalid}`),
			wantError: true,
		},
		{
			name:      "wrong geometry type",
			input:     []byte(`{"type":"Point","coordinates":[0,0]}`),
			wantError: true,
		},
		{
			name:      "unsupported input type",
			input:     42,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mp MultiPolygon
			err := mp.Scan(tt.input)

			if tt.wantError && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if len(mp.Coordinates) != tt.wantParts {
				t.Errorf("expected %d polygons, got %d", tt.wantParts, len(mp.Coordinates))
			}
			if tt.wantParts > 0 && mp.SRID != SRIDWGS84 {
				t.Errorf("expected SRID 4326, got %d", mp.SRID)
			}
		})
	}
}

func TestMultiPolygonWrongTypeIsInvalidGeometry(t *testing.T) {
	var mp MultiPolygon
	err := json.Unmarshal([]byte(`{"type":"LineString","coordinates":[[0,0],[1,1]]}`), &mp)
	if !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("expected ErrInvalidGeometry, got %v", err)
	}
}

// TestMultiPolygonValue tests the Value method (writing to database)
func TestMultiPolygonValue(t *testing.T) {
	val, err := MultiPolygon{}.Value()
	if err != nil || val != nil {
		t.Errorf("empty geometry: expected nil, nil; got %v, %v", val, err)
	}

	var mp MultiPolygon
	if err := mp.Scan([]byte(farmPolygon)); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	val, err = mp.Value()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var geom map[string]interface{}
	if err := json.Unmarshal([]byte(val.(string)), &geom); err != nil {
		t.Fatalf("Value() did not return valid JSON: %v", err)
	}
	if geom["type"] != "MultiPolygon" {
		t.Errorf("expected type=MultiPolygon, got %v", geom["type"])
	}
}

func TestMultiPolygonEqualAndValidate(t *testing.T) {
	var a, b MultiPolygon
	if err := json.Unmarshal([]byte(farmPolygon), &a); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if err := json.Unmarshal([]byte(farmPolygon), &b); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if err := a.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
	if !a.Equal(b) {
		t.Error("expected identical geometries to be equal")
	}

	b.Coordinates[0][0][1][0] = -95.3
	b.Coordinates[0][0][2][0] = -95.3
	if a.Equal(b) {
		t.Error("expected moved geometry to differ")
	}

	bound := a.Bound()
	if bound.Min[0] != -95.5 || bound.Max[1] != 30.3 {
		t.Errorf("unexpected bound %v", bound)
	}

	if err := (MultiPolygon{}).Validate(); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("expected ErrInvalidGeometry for empty geometry, got %v", err)
	}
}

func TestParseLandsatSceneID(t *testing.T) {
	sensor, date, err := ParseLandsatSceneID("LC08_L2SP_025039_20230615_20230620_02_T1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sensor != "LC08" {
		t.Errorf("expected sensor LC08, got %s", sensor)
	}
	if !date.Equal(time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected acquisition date %v", date)
	}

	for _, id := range []string{"S1", "LC08_L2SP_025039_2023-06-15"} {
		if _, _, err := ParseLandsatSceneID(id); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", id, err)
		}
	}
}
