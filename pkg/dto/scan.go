package dto

type StartScanRequest struct {
	Surface string `form:"surface" json:"surface"`
}

type ScanStatusListResponse struct {
	Sessions []ScanStateEvent `json:"sessions"`
	Total    int              `json:"total"`
}
