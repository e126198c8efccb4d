package repository

import (
	"context"

	"github.com/storyscope/storyscope/internal/domain"
	"gorm.io/gorm"
)

// BookRepository handles book and chapter data operations.
type BookRepository struct {
	db *gorm.DB
}

// NewBookRepository creates a new BookRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *BookRepository: repository instance bound to db.
func NewBookRepository(db *gorm.DB) *BookRepository {
	return &BookRepository{db: db}
}

// Create inserts a new book together with its chapters.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - book: book record to persist, chapters included.
// Returns:
//   - error: non-nil if the insert fails.
func (r *BookRepository) Create(ctx context.Context, book *domain.Book) error {
	return r.db.WithContext(ctx).Create(book).Error
}

// GetByID retrieves a book with its chapters ordered by position.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: book ID.
// Returns:
//   - *domain.Book: book record if found.
//   - error: gorm.ErrRecordNotFound if the book does not exist.
func (r *BookRepository) GetByID(ctx context.Context, id string) (*domain.Book, error) {
	var book domain.Book
	if err := r.db.WithContext(ctx).
		Preload("Chapters", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// CountChapters returns the number of chapters stored for a book.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - bookID: book ID.
// Returns:
//   - int64: chapter count.
//   - error: non-nil if the query fails.
func (r *BookRepository) CountChapters(ctx context.Context, bookID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Chapter{}).
		Where("book_id = ?", bookID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// List retrieves books with pagination, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Book: matching book records without chapter bodies.
//   - error: non-nil if the query fails.
func (r *BookRepository) List(ctx context.Context, limit, offset int) ([]domain.Book, error) {
	var books []domain.Book
	if err := r.db.WithContext(ctx).
		Limit(limit).
		Offset(offset).
		Order("created_at DESC").
		Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}
