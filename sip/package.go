// Package sip assembles Submission Information Packages: BagIt bags holding
// the files of one upstream record, the record's metadata, and a sip.json
// describing how the package was made.
//
// A package is built by an Assembler in a fresh directory under its work
// directory, and may then be handed to a Deliverer to move it to its final
// place.
package sip

import (
	"bytes"
	_ "embed" // for the schema
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ndlib/bagcreate/bagit"
)

const (
	// SchemaURL is written as the $schema of every sip.json.
	SchemaURL = "https://gitlab.cern.ch/digitalmemory/sip-spec/-/blob/master/sip-schema-d1.json"

	// Website is recorded in the audit trail.
	Website = "https://github.com/ndlib/bagcreate"

	// ToolName is the name of this tool in the audit trail.
	ToolName = "bagcreate"

	// MetaFile and LogFile are the files the assembler writes into the
	// package itself.
	MetaFile = bagit.MetaDir + "/sip.json"
	LogFile  = bagit.MetaDir + "/bagcreate.log"
)

// A Package is a SIP being assembled.
type Package struct {
	Name     string // e.g. "sip::cds::2751237::1600000000"
	BasePath string // the directory the bag lives in
	Source   string
	RecID    string

	// MetadataURL is the upstream endpoint the metadata record was read
	// from, if there was one.
	MetadataURL string

	// Files lists every file in the package in the order they were
	// manifested.
	Files []*bagit.File

	// Manifests holds the entries written for each algorithm.
	Manifests map[bagit.Algorithm][]bagit.ManifestEntry

	Audit   []AuditStep
	Created time.Time

	// SourceDetails is only set for packages of local directories.
	SourceDetails *SourceDetails
}

// An AuditStep records one action taken on a package.
type AuditStep struct {
	Tool      Tool   `json:"tool"`
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message,omitempty"`
}

// Tool describes the program which took an audit step.
type Tool struct {
	Name    string                 `json:"name"`
	Version string                 `json:"version"`
	Website string                 `json:"website,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// SourceDetails tells where on disk a local package was read from.
type SourceDetails struct {
	SourcePath     string `json:"source_path"`
	SourceBasePath string `json:"source_base_path"`
}

// Meta is the content of sip.json.
type Meta struct {
	Schema               string         `json:"$schema"`
	CreatedBy            string         `json:"created_by"`
	Audit                []AuditStep    `json:"audit"`
	Source               string         `json:"source"`
	RecID                string         `json:"recid"`
	MetadataFileUpstream *string        `json:"metadataFile_upstream"`
	ContentFiles         []*bagit.File  `json:"contentFiles"`
	SIPCreationTimestamp int64          `json:"sip_creation_timestamp"`
	SourceDetails        *SourceDetails `json:"source_details,omitempty"`
}

// PackageName returns the name of the package for a record. Record ids
// which are paths, as for local directories, are reduced to their last
// element.
func PackageName(source, recid string, timestamp int64) string {
	if strings.ContainsAny(recid, `/\`) {
		recid = filepath.Base(filepath.Clean(recid))
	}
	return fmt.Sprintf("sip::%s::%s::%d", source, recid, timestamp)
}

// Meta returns the sip.json content for the package.
func (p *Package) Meta(createdBy string) Meta {
	m := Meta{
		Schema:               SchemaURL,
		CreatedBy:            createdBy,
		Audit:                p.Audit,
		Source:               p.Source,
		RecID:                p.RecID,
		ContentFiles:         p.Files,
		SIPCreationTimestamp: p.Created.Unix(),
		SourceDetails:        p.SourceDetails,
	}
	if m.Audit == nil {
		m.Audit = []AuditStep{}
	}
	if m.ContentFiles == nil {
		m.ContentFiles = []*bagit.File{}
	}
	if p.MetadataURL != "" {
		u := p.MetadataURL
		m.MetadataFileUpstream = &u
	}
	return m
}

// MarshalMeta returns the indented sip.json for the package.
func (p *Package) MarshalMeta(createdBy string) ([]byte, error) {
	return json.MarshalIndent(p.Meta(createdBy), "", "    ")
}

// ReadMeta parses the content of a sip.json file.
func ReadMeta(b []byte) (*Meta, error) {
	m := new(Meta)
	err := json.Unmarshal(b, m)
	if err != nil {
		return nil, err
	}
	return m, nil
}

//go:embed schema.json
var schemaText string

var schema = jsonschema.MustCompileString("schema.json", schemaText)

// ValidateMeta checks the given sip.json content against the sip.json
// schema.
func ValidateMeta(b []byte) error {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	err := dec.Decode(&v)
	if err != nil {
		return errors.Wrap(err, "sip.json")
	}
	return schema.Validate(v)
}
