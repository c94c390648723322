package transport

// Request is sent to the USB I/O agent on dockd/transport/request/{op}.
type Request struct {
	RequestID string `json:"request_id"`
	Op        string `json:"op"`
	DeviceID  string `json:"device_id"`
	Kind      string `json:"kind"`
	HubID     string `json:"hub_id,omitempty"`
	VendorID  uint16 `json:"vendor_id,omitempty"`
	ProductID uint16 `json:"product_id,omitempty"`
	LockID    string `json:"lock_id,omitempty"`
}

// Response is the agent's reply on dockd/transport/response/{request_id}.
type Response struct {
	RequestID  string `json:"request_id"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	LockID     string `json:"lock_id,omitempty"`
	LinkActive bool   `json:"link_active,omitempty"`
}
