// Package schema validates bundlegen input documents against embedded CUE
// definitions and decodes them into Go records.
//
// Every document crossing into the resolution engine (platform templates,
// application metadata and library catalogs) is unified with its definition
// first. Definitions are closed unless they say otherwise, so unknown fields
// and missing required fields are reported at the boundary, with CUE paths,
// rather than surfacing as zero values deep inside the pipeline.
//
// JSON documents are compiled directly (JSON is valid CUE). Files with a
// .yaml or .yml extension are extracted with the CUE YAML encoder.
//
// Example usage:
//
//	app, err := schema.Decode[metadata.App](schema.AppMetadata, "appmetadata.json", data)
//	if err != nil {
//	    return err
//	}
package schema
