package domain

// Task is a chart-monitoring task as described by the remote catalog. The
// remote system owns it; this service only reads it.
type Task struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	LastExecutionID string `json:"lastExecutionId,omitempty"`
}

// ArtifactRole identifies one of the files every completed execution produces.
type ArtifactRole string

const (
	RoleSnapshot   ArtifactRole = "snapshot"
	RoleImageSmall ArtifactRole = "image-small"
	RoleImageLarge ArtifactRole = "image-large"
)

// Roles returns every required artifact role in fetch order. The order is
// fixed so that remote calls and logs stay deterministic across refreshes.
func Roles() []ArtifactRole {
	return []ArtifactRole{RoleSnapshot, RoleImageSmall, RoleImageLarge}
}

// Filename maps a role plus the content type the remote declared for it to
// the name the payload is persisted under. The snapshot role is always JSON;
// PNG images keep their extension; anything else is stored under the bare
// role name so the transaction can still be evaluated as attempted.
func (r ArtifactRole) Filename(contentType string) string {
	if r == RoleSnapshot {
		return string(r) + ".json"
	}
	if contentType == "image/png" {
		return string(r) + ".png"
	}
	return string(r)
}
