package domain

// DialogRecord identifies the dialog (if any) currently active for a
// conversation, plus that dialog's resume point. The zero value means no
// dialog is active; absence is modelled by the value itself rather than a
// nullable reference. At most one dialog is active per conversation.
type DialogRecord struct {
	Dialog string `json:"dialog,omitempty"`
	Stage  string `json:"stage,omitempty"`
}

// Active reports whether a dialog is in progress.
func (r DialogRecord) Active() bool {
	return r.Dialog != ""
}
