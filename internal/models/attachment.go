package models

// Attachment is a file stored against a record.
type Attachment struct {
	ID        int64  `json:"id"`
	ResModel  string `json:"res_model"`
	ResID     int64  `json:"res_id"`
	Name      string `json:"name"`
	Mimetype  string `json:"mimetype"`
	FileSize  int64  `json:"file_size"`
	Checksum  string `json:"checksum"`
	CreatedAt int64  `json:"create_date"`
}
