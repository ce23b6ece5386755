package importapi

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const DefaultPathPrefix = "Relativity.REST/api/import-service/v1"

// endpoints builds request paths relative to the client's base URL.
type endpoints struct {
	prefix string
}

func newEndpoints(prefix string) endpoints {
	return endpoints{prefix: strings.Trim(prefix, "/")}
}

func (e endpoints) importJob(workspaceID int64, importID uuid.UUID) string {
	return fmt.Sprintf("%s/workspaces/%d/import-jobs/%s", e.prefix, workspaceID, importID)
}

func (e endpoints) rdoConfiguration(workspaceID int64, importID uuid.UUID) string {
	return e.importJob(workspaceID, importID) + "/rdos-configurations"
}

func (e endpoints) source(workspaceID int64, importID, sourceID uuid.UUID) string {
	return fmt.Sprintf("%s/sources/%s", e.importJob(workspaceID, importID), sourceID)
}

func (e endpoints) begin(workspaceID int64, importID uuid.UUID) string {
	return e.importJob(workspaceID, importID) + "/begin"
}

func (e endpoints) end(workspaceID int64, importID uuid.UUID) string {
	return e.importJob(workspaceID, importID) + "/end"
}

func (e endpoints) sourceDetails(workspaceID int64, importID, sourceID uuid.UUID) string {
	return e.source(workspaceID, importID, sourceID) + "/details"
}

func (e endpoints) sourceProgress(workspaceID int64, importID, sourceID uuid.UUID) string {
	return e.source(workspaceID, importID, sourceID) + "/progress"
}
