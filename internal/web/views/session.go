// Package views renders the HTML pages of the import UI.
//
// Components are written in .templ files; run `templ generate` after
// editing them.
package views

import (
	"github.com/a-h/templ"

	"github.com/JonMunkholm/bizimport/internal/importer"
)

// steps lists the stages in display order.
var steps = []struct {
	stage importer.Stage
	label string
}{
	{importer.StageSelectFile, "Select file"},
	{importer.StageMapFields, "Map fields"},
	{importer.StageVerify, "Verify"},
	{importer.StageDone, "Done"},
}

func uploadURL(sessionID string) templ.SafeURL {
	return templ.URL("/api/sessions/" + sessionID + "/file")
}

func templateURL(entity importer.EntityType) templ.SafeURL {
	return templ.URL("/api/template/" + string(entity))
}

func fieldLabel(def importer.EntityDefinition, name string) string {
	spec, _ := def.Field(name)
	return spec.Label
}

func fieldRequired(def importer.EntityDefinition, name string) bool {
	spec, _ := def.Field(name)
	return spec.Required
}
