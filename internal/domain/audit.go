package domain

// AuditEntry: запись журнала доступа к защищенным данным.
// Timestamp (RFC3339Nano) одновременно служит ключом дедупликации.
type AuditEntry struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"` // granted, denied
	Agent     string `json:"agent"`
	DataType  string `json:"dataType"`
	Summary   string `json:"summary"`
}
