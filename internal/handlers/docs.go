package handlers

import (
	"encoding/json"
	"net/http"
)

type object = map[string]interface{}

func jsonContent(schema object) object {
	return object{"application/json": object{"schema": schema}}
}

func response(description string, schema object) object {
	return object{"description": description, "content": jsonContent(schema)}
}

func errorResponse(description string) object {
	return response(description, object{"$ref": "#/components/schemas/Error"})
}

func uploadOperation(summary, description, summaryRef string) object {
	return object{
		"summary":     summary,
		"description": description,
		"security":    []object{{"bearerAuth": []string{}}},
		"requestBody": object{
			"required": true,
			"content": object{
				"multipart/form-data": object{
					"schema": object{
						"type":     "object",
						"required": []string{"file"},
						"properties": object{
							"file": object{"type": "string", "format": "binary", "description": "CSV, TSV or .xlsx file"},
						},
					},
				},
			},
		},
		"responses": object{
			"200": response("Upload stored", object{
				"allOf": []object{
					{"$ref": "#/components/schemas/UploadResult"},
					{"type": "object", "properties": object{"data": object{"$ref": summaryRef}}},
				},
			}),
			"400": errorResponse("Unreadable file or missing required columns"),
			"403": errorResponse("Missing or invalid bearer token"),
			"413": errorResponse("Upload too large"),
			"500": errorResponse("Storage failure; nothing was written"),
		},
	}
}

var seriesPoint = object{
	"type": "object",
	"properties": object{
		"tanggal": object{"type": "string", "description": "YYYY-MM-DD (daily) or YYYY-MM (monthly)"},
		"ch":      object{"type": "number", "description": "Rainfall in millimetres"},
	},
}

// OpenAPISpec returns the OpenAPI 3.0 specification for the Rainfall Platform API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := object{
		"openapi": "3.0.0",
		"info": object{
			"title":       "Rainfall Platform API",
			"description": "Rain-gauge station metadata and daily rainfall ingestion with per-station series",
			"version":     "1.0.0",
			"contact": map[string]string{
				"name": "Rainfall Platform Team",
			},
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": object{
			"/api/uploads/metadata": object{
				"post": uploadOperation("Upload station metadata",
					"Upserts stations by code, creating provinces and regencies on demand. Rows with bad coordinates are skipped.",
					"#/components/schemas/MetadataSummary"),
			},
			"/api/uploads/measurements": object{
				"post": uploadOperation("Upload daily rainfall",
					"Stores daily rainfall keyed by station name. Missing-data codes 8888 and 9999 and negative values are dropped.",
					"#/components/schemas/MeasurementSummary"),
			},
			"/api/stations": object{
				"get": object{
					"summary":     "List stations with their latest observation",
					"description": "Ordered by regency name (stations without a regency last), then station name",
					"responses": object{
						"200": response("Successful response", object{
							"type":  "array",
							"items": object{"$ref": "#/components/schemas/StationLatest"},
						}),
					},
				},
			},
			"/api/stations/{id}": object{
				"get": object{
					"summary": "Station detail with daily and monthly series",
					"parameters": []object{
						{"name": "id", "in": "path", "required": true, "schema": object{"type": "integer"}},
					},
					"responses": object{
						"200": response("Successful response", object{
							"type": "object",
							"properties": object{
								"status":  object{"type": "string"},
								"station": object{"type": "object"},
								"daily":   object{"type": "array", "items": seriesPoint},
								"monthly": object{"type": "array", "items": seriesPoint},
							},
						}),
						"404": errorResponse("Unknown station"),
					},
				},
			},
			"/api/rainfall": object{
				"get": object{
					"summary":     "Rainfall series for one station",
					"description": "The station is matched by exact name, ignoring case",
					"parameters": []object{
						{"name": "station_name", "in": "query", "required": true, "schema": object{"type": "string"}},
						{
							"name":        "mode",
							"in":          "query",
							"required":    false,
							"description": "daily (default) or monthly; harian and bulanan are accepted",
							"schema":      object{"type": "string", "default": "daily"},
						},
					},
					"responses": object{
						"200": response("Successful response", object{
							"type": "object",
							"properties": object{
								"status":       object{"type": "string"},
								"station_id":   object{"type": "integer"},
								"station_name": object{"type": "string"},
								"mode":         object{"type": "string"},
								"data":         object{"type": "array", "items": seriesPoint},
							},
						}),
						"400": errorResponse("station_name missing"),
						"404": errorResponse("Unknown station"),
					},
				},
			},
			"/health": object{
				"get": object{
					"summary":     "Health check",
					"description": "Check that the API is running and the database is reachable",
					"responses": object{
						"200": response("API is healthy", object{
							"type":       "object",
							"properties": object{"status": object{"type": "string"}},
						}),
						"503": response("Database unreachable", object{"type": "object"}),
					},
				},
			},
			"/metrics": object{
				"get": object{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": object{
						"200": object{
							"description": "Prometheus metrics in text format",
							"content": object{
								"text/plain": object{"schema": object{"type": "string"}},
							},
						},
					},
				},
			},
		},
		"components": object{
			"securitySchemes": object{
				"bearerAuth": object{"type": "http", "scheme": "bearer"},
			},
			"schemas": object{
				"Error": object{
					"type": "object",
					"properties": object{
						"status":  object{"type": "string", "example": "error"},
						"error":   object{"type": "string"},
						"message": object{"type": "string"},
						"code":    object{"type": "integer"},
					},
				},
				"UploadResult": object{
					"type": "object",
					"properties": object{
						"status":                   object{"type": "string", "example": "success"},
						"message":                  object{"type": "string"},
						"unresolved_station_names": object{"type": "array", "items": object{"type": "string"}},
					},
				},
				"MetadataSummary": object{
					"type": "object",
					"properties": object{
						"rows":             object{"type": "integer"},
						"stations_created": object{"type": "integer"},
						"stations_updated": object{"type": "integer"},
						"skipped_rows": object{
							"type": "array",
							"items": object{
								"type": "object",
								"properties": object{
									"line":   object{"type": "integer"},
									"code":   object{"type": "string"},
									"reason": object{"type": "string"},
								},
							},
						},
					},
				},
				"MeasurementSummary": object{
					"type": "object",
					"properties": object{
						"rows":                 object{"type": "integer"},
						"stored":               object{"type": "integer"},
						"dropped":              object{"type": "object", "additionalProperties": object{"type": "integer"}},
						"duplicates_collapsed": object{"type": "integer"},
					},
				},
				"StationLatest": object{
					"type": "object",
					"properties": object{
						"id":              object{"type": "integer"},
						"code":            object{"type": "string"},
						"name":            object{"type": "string"},
						"lat":             object{"type": "number"},
						"lng":             object{"type": "number"},
						"regency":         object{"type": "string", "nullable": true},
						"sub_district":    object{"type": "string", "nullable": true},
						"latest_date":     object{"type": "string", "format": "date", "nullable": true},
						"latest_value_mm": object{"type": "number", "nullable": true},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
