package snowapi

import "fmt"

// QueryRequest represents the request body for submitting a SQL statement.
type QueryRequest struct {
	Statement         string               `json:"statement"`
	Timeout           int                  `json:"timeout,omitempty"`
	Database          string               `json:"database,omitempty"`
	Schema            string               `json:"schema,omitempty"`
	Warehouse         string               `json:"warehouse,omitempty"`
	Role              string               `json:"role,omitempty"`
	ResultSetMetaData *ResultSetMetaConfig `json:"resultSetMetaData,omitempty"`
}

// ResultSetMetaConfig defines the format of metadata in response.
type ResultSetMetaConfig struct {
	Format string `json:"format"` // "jsonv2"
}

// QueryResponse is the body of a 200 (result partition) or 202 (still
// running) response. Partitions after the first carry only Data.
type QueryResponse struct {
	ResultSetMetaData  *ResultSetMetaData `json:"resultSetMetaData,omitempty"`
	Data               [][]any            `json:"data"`
	Code               string             `json:"code"`
	StatementStatusURL string             `json:"statementStatusUrl"`
	StatementHandle    string             `json:"statementHandle"`
	SQLState           string             `json:"sqlState"`
	Message            string             `json:"message"`
	CreatedOn          int64              `json:"createdOn"`
}

// ResultSetMetaData describes the metadata for returned data.
type ResultSetMetaData struct {
	NumRows       int             `json:"numRows"`
	Format        string          `json:"format"`
	RowType       []ColumnMeta    `json:"rowType"`
	PartitionInfo []PartitionMeta `json:"partitionInfo"`
}

// ColumnMeta describes a single column in the result set.
type ColumnMeta struct {
	Name       string  `json:"name"`
	Database   string  `json:"database"`
	Schema     string  `json:"schema"`
	Table      string  `json:"table"`
	Nullable   bool    `json:"nullable"`
	Scale      *int    `json:"scale"`
	ByteLength *int    `json:"byteLength"`
	Length     *int    `json:"length"`
	Type       string  `json:"type"`
	Precision  *int    `json:"precision"`
	Collation  *string `json:"collation"`
}

// PartitionMeta provides partition-level metadata (when results are paginated).
type PartitionMeta struct {
	RowCount         int  `json:"rowCount"`
	UncompressedSize int  `json:"uncompressedSize"`
	CompressedSize   *int `json:"compressedSize,omitempty"`
}

// APIError captures error payloads (e.g. 422, 408) together with the HTTP
// status they arrived with.
type APIError struct {
	StatusCode      int    `json:"-"`
	Code            string `json:"code"`
	Message         string `json:"message"`
	SQLState        string `json:"sqlState,omitempty"`
	StatementHandle string `json:"statementHandle,omitempty"`
}

func (e *APIError) Error() string {
	if e.SQLState != "" {
		return fmt.Sprintf("snowflake API error %d: %s (code %s, sqlState %s)", e.StatusCode, e.Message, e.Code, e.SQLState)
	}
	return fmt.Sprintf("snowflake API error %d: %s (code %s)", e.StatusCode, e.Message, e.Code)
}
