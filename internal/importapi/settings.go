package importapi

// Wire payloads of the remote import service. Field names follow the service's JSON.

type createJobPayload struct {
	ApplicationName string `json:"applicationName"`
	CorrelationID   string `json:"correlationID"`
}

type FieldMapping struct {
	Field            string `json:"Field"`
	ContainsID       bool   `json:"ContainsID"`
	ColumnIndex      int    `json:"ColumnIndex"`
	ContainsFilePath bool   `json:"ContainsFilePath"`
}

type fieldsSettings struct {
	FieldMappings []FieldMapping `json:"FieldMappings"`
}

type rdoSettings struct {
	ArtifactTypeID    int64 `json:"ArtifactTypeID"`
	ParentColumnIndex *int  `json:"ParentColumnIndex"`
}

type importRdoSettings struct {
	Overlay *struct{}      `json:"Overlay"`
	Fields  fieldsSettings `json:"Fields"`
	Rdo     rdoSettings    `json:"Rdo"`
}

type rdoConfigurationPayload struct {
	ImportSettings importRdoSettings `json:"importSettings"`
}

type DataSourceSettings struct {
	Type                         string `json:"Type"`
	Path                         string `json:"Path"`
	NewLineDelimiter             string `json:"NewLineDelimiter"`
	ColumnDelimiter              string `json:"ColumnDelimiter"`
	QuoteDelimiter               string `json:"QuoteDelimiter"`
	MultiValueDelimiter          string `json:"MultiValueDelimiter"`
	NestedValueDelimiter         string `json:"NestedValueDelimiter"`
	Encoding                     string `json:"Encoding"`
	CultureInfo                  string `json:"CultureInfo"`
	EndOfLine                    string `json:"EndOfLine"`
	FirstLineContainsColumnNames bool   `json:"FirstLineContainsColumnNames"`
	StartLine                    int    `json:"StartLine"`
}

type dataSourcePayload struct {
	DataSourceSettings DataSourceSettings `json:"dataSourceSettings"`
}

// LoadFileSettings describes the CSV files written by csvtransform.
func LoadFileSettings(path string) DataSourceSettings {
	return DataSourceSettings{
		Type:                         "LoadFile",
		Path:                         path,
		NewLineDelimiter:             "\n",
		ColumnDelimiter:              ",",
		QuoteDelimiter:               `"`,
		MultiValueDelimiter:          ";",
		NestedValueDelimiter:         `\`,
		Encoding:                     "utf-8",
		CultureInfo:                  "en-US",
		EndOfLine:                    "Windows",
		FirstLineContainsColumnNames: true,
		StartLine:                    0,
	}
}

// remoteFieldNames maps file columns whose remote field is named differently.
var remoteFieldNames = map[string]string{
	"FileLinkedDocument": "File (Linked Document)",
}

// FieldMappingsFor maps every written column, in order, to the remote field of the
// same name.
func FieldMappingsFor(columns []string) []FieldMapping {
	mappings := make([]FieldMapping, len(columns))
	for i, c := range columns {
		field := c
		if renamed, ok := remoteFieldNames[c]; ok {
			field = renamed
		}
		mappings[i] = FieldMapping{Field: field, ColumnIndex: i}
	}
	return mappings
}

// apiResponse is the envelope every write endpoint answers with.
type apiResponse struct {
	IsSuccess    bool   `json:"IsSuccess"`
	ErrorCode    string `json:"ErrorCode"`
	ErrorMessage string `json:"ErrorMessage"`
}

type dataSourceDetails struct {
	State State `json:"State"`
}

type detailsResponse struct {
	apiResponse
	Value dataSourceDetails `json:"Value"`
}

// Progress is the record counters reported for a data source.
type Progress struct {
	TotalRecords    int64 `json:"TotalRecords"`
	ImportedRecords int64 `json:"ImportedRecords"`
	ErroredRecords  int64 `json:"ErroredRecords"`
}

type progressResponse struct {
	apiResponse
	Value Progress `json:"Value"`
}
