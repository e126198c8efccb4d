package domain

import "time"

// Book represents one submitted manuscript.
type Book struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	Title     string    `gorm:"type:text;not null" json:"title"`
	Author    string    `gorm:"type:text" json:"author,omitempty"`
	Genre     string    `gorm:"type:text" json:"genre,omitempty"`
	Synopsis  string    `gorm:"type:text" json:"synopsis,omitempty"`
	Chapters  []Chapter `gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE" json:"chapters,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Book.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Book) TableName() string {
	return "books"
}

// Chapter is one analyzable unit of a book. Position is 1-based and
// fixed at intake; analysis results are aligned to it.
type Chapter struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	BookID    string    `gorm:"type:text;not null;index" json:"book_id"`
	Position  int       `gorm:"not null" json:"position"`
	Title     string    `gorm:"type:text" json:"title,omitempty"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Chapter.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Chapter) TableName() string {
	return "chapters"
}
