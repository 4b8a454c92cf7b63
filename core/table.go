package core

// Index is a secondary index declared on a table. Indexes are recorded in
// the engine catalog when the table is created.
type Index struct {
	Name   string `json:"name" yaml:"name"`
	Column string `json:"column" yaml:"column"`
	Unique bool   `json:"unique,omitempty" yaml:"unique,omitempty"`
}

type Table struct {
	Name       string  `json:"name" yaml:"name"`
	PrimaryKey string  `json:"primaryKey" yaml:"primary_key"`
	Indexes    []Index `json:"indexes,omitempty" yaml:"indexes,omitempty"`
}
