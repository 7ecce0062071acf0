package artifact

import "time"

// Artifact keys shared by the pipeline and the read server.
const (
	KeyFeeSnapshot          = "fees/snapshot"
	KeyFeeCodes             = "fees/codes"
	KeyPaidIDs              = "index/paid"
	KeyAssignmentMapped     = "assignment/mapped"
	KeyAssignmentTargets    = "assignment/targets"
	KeyAssignmentFinished   = "assignment/finished"
	KeyLastFeeUpdate        = "meta/last_fee_update"
	KeyLastAssignmentUpdate = "meta/last_assignment_update"
	KeyLastIndexBuild       = "meta/last_index_build"
)

// IndexKey is the key of the sorted index for one reporting set.
func IndexKey(set string) string {
	return "index/" + set
}

// PrunedKey is the key of the backup taken before a retention prune.
func PrunedKey(day time.Time) string {
	return "pruned/" + day.Format("2006-01-02")
}

// Timestamp is the payload of the meta/* artifacts.
type Timestamp struct {
	At time.Time `json:"at"`
}

// SchemaTimestamp names the Timestamp payload.
const SchemaTimestamp = "timestamp"
