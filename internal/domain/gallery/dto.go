package gallery

// CreateRequest is the validated input to Service.Create.
type CreateRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=200"`
	TTLWeeks int    `json:"ttlWeeks" validate:"required,min=1"`
}

// RenameRequest is the validated input to Service.Rename.
type RenameRequest struct {
	NewName string `json:"newName" validate:"required,min=1,max=200"`
}

// Response is the gallery shape returned to API callers.
type Response struct {
	Name       string `json:"name"`
	FolderName string `json:"folderName"`
	CreatedAt  int64  `json:"createdAt"`
	ExpiresAt  int64  `json:"expiresAt"`
	TTLWeeks   int    `json:"ttlWeeks"`
	CreatedBy  string `json:"createdBy"`
	TotalItems int64  `json:"totalItems"`
}

// ToResponse converts the internal record to its API shape.
func ToResponse(g *Gallery) Response {
	return Response{
		Name:       g.Name,
		FolderName: g.FolderName,
		CreatedAt:  g.CreatedAt,
		ExpiresAt:  g.ExpiresAt,
		TTLWeeks:   g.TTLWeeks,
		CreatedBy:  g.CreatedBy,
		TotalItems: g.TotalItems,
	}
}
