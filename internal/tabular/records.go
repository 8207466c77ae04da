package tabular

import "rainfall-platform/internal/models"

// MetadataRecords resolves the metadata columns and returns one record per row.
func (t *Table) MetadataRecords() ([]models.StationMetadataRecord, error) {
	cm, err := t.Resolve(MetadataFields)
	if err != nil {
		return nil, err
	}

	out := make([]models.StationMetadataRecord, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, models.StationMetadataRecord{
			Line:          row.Line,
			Code:          cm.Get(row, FieldCode),
			Name:          cm.Get(row, FieldName),
			OperatingUnit: cm.Get(row, FieldOperatingUnit),
			Province:      cm.Get(row, FieldProvince),
			Regency:       cm.Get(row, FieldRegency),
			SubDistrict:   cm.Get(row, FieldSubDistrict),
			Latitude:      cm.Get(row, FieldLatitude),
			Longitude:     cm.Get(row, FieldLongitude),
			Elevation:     cm.Get(row, FieldElevation),
		})
	}
	return out, nil
}

// MeasurementRecords resolves the time-series columns and returns one record per row.
func (t *Table) MeasurementRecords() ([]models.RawMeasurementRecord, error) {
	cm, err := t.Resolve(MeasurementFields)
	if err != nil {
		return nil, err
	}

	out := make([]models.RawMeasurementRecord, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, models.RawMeasurementRecord{
			Line:        row.Line,
			StationName: cm.Get(row, FieldStationName),
			Date:        cm.Get(row, FieldDate),
			Value:       cm.Get(row, FieldValue),
			Date1904:    t.Date1904,
		})
	}
	return out, nil
}
