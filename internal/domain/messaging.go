package domain

// MessagingSettings are the connection parameters consumed by the
// messaging transport.
type MessagingSettings struct {
	URL    string `json:"url"`
	CACert string `json:"cacert"`
	UUID   string `json:"uuid"`
}
