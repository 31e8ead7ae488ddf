package catalogue

import "time"

// ===== Requests =====

type CreateBookRequest struct {
	Title      string  `json:"title" binding:"required"`
	Author     string  `json:"author" binding:"required"`
	ISBN       *string `json:"isbn,omitempty"`
	Publisher  *string `json:"publisher,omitempty"`
	CategoryID *int64  `json:"category_id,omitempty"`
	QtyTotal   int     `json:"qty_total"`
}

type UpdateBookRequest struct {
	Title      *string `json:"title,omitempty"`
	Author     *string `json:"author,omitempty"`
	ISBN       *string `json:"isbn,omitempty"`
	Publisher  *string `json:"publisher,omitempty"`
	CategoryID *int64  `json:"category_id,omitempty"`
	QtyTotal   *int    `json:"qty_total,omitempty"`
}

// ===== Responses =====

type BookResponse struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	ISBN         *string   `json:"isbn,omitempty"`
	Publisher    *string   `json:"publisher,omitempty"`
	CategoryID   *int64    `json:"category_id,omitempty"`
	CategoryName *string   `json:"category_name,omitempty"`
	QtyTotal     int       `json:"qty_total"`
	QtyAvailable int       `json:"qty_available"`
	CreatedAt    time.Time `json:"created_at"`
}

type StatsResponse struct {
	TotalTitles     int64 `json:"total_titles"`
	TotalCopies     int64 `json:"total_copies"`
	AvailableCopies int64 `json:"available_copies"`
}

func buildBookResponse(r *bookRow) BookResponse {
	resp := BookResponse{
		ID:           r.ID,
		Title:        r.Title,
		Author:       r.Author,
		QtyTotal:     r.QtyTotal,
		QtyAvailable: r.QtyAvailable,
		CreatedAt:    r.CreatedAt,
	}
	if r.ISBN.Valid {
		val := r.ISBN.String
		resp.ISBN = &val
	}
	if r.Publisher.Valid {
		val := r.Publisher.String
		resp.Publisher = &val
	}
	if r.CategoryID.Valid {
		val := r.CategoryID.Int64
		resp.CategoryID = &val
	}
	if r.CategoryName.Valid {
		val := r.CategoryName.String
		resp.CategoryName = &val
	}
	return resp
}
