package http

type createReq struct {
	Name       string `json:"name"`
	FolderName string `json:"folder_name,omitempty"`
}
