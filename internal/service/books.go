package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storyscope/storyscope/internal/domain"
	"github.com/storyscope/storyscope/internal/repository"
)

// BookService handles manuscript intake.
type BookService struct {
	books *repository.BookRepository
}

// NewBookService creates a new book service.
func NewBookService(books *repository.BookRepository) *BookService {
	return &BookService{books: books}
}

// ChapterInput is one chapter of a submitted manuscript. Position is
// optional; chapters without one are numbered by submission order.
type ChapterInput struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Content  string `json:"content" binding:"required"`
}

// BookInput is a manuscript submission.
type BookInput struct {
	Title    string         `json:"title" binding:"required"`
	Author   string         `json:"author"`
	Genre    string         `json:"genre"`
	Synopsis string         `json:"synopsis"`
	Chapters []ChapterInput `json:"chapters" binding:"required,min=1,dive"`
}

// Create validates and stores a manuscript with its chapters.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - input: manuscript fields and at least one chapter.
// Returns:
//   - *domain.Book: stored book with generated IDs and chapters in position order.
//   - error: validation or storage failure.
func (s *BookService) Create(ctx context.Context, input *BookInput) (*domain.Book, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, errors.New("title is required")
	}
	if len(input.Chapters) == 0 {
		return nil, ErrEmptyBook
	}

	book := &domain.Book{
		ID:       uuid.New().String(),
		Title:    strings.TrimSpace(input.Title),
		Author:   strings.TrimSpace(input.Author),
		Genre:    strings.TrimSpace(input.Genre),
		Synopsis: strings.TrimSpace(input.Synopsis),
	}

	for i, chapter := range input.Chapters {
		if strings.TrimSpace(chapter.Content) == "" {
			return nil, fmt.Errorf("chapter %d has no content", i+1)
		}
		position := chapter.Position
		if position <= 0 {
			position = i + 1
		}
		book.Chapters = append(book.Chapters, domain.Chapter{
			ID:       uuid.New().String(),
			BookID:   book.ID,
			Position: position,
			Title:    strings.TrimSpace(chapter.Title),
			Content:  chapter.Content,
		})
	}

	sort.SliceStable(book.Chapters, func(i, j int) bool {
		return book.Chapters[i].Position < book.Chapters[j].Position
	})
	for i := range book.Chapters {
		if i > 0 && book.Chapters[i].Position == book.Chapters[i-1].Position {
			return nil, fmt.Errorf("duplicate chapter position %d", book.Chapters[i].Position)
		}
	}

	if err := s.books.Create(ctx, book); err != nil {
		return nil, fmt.Errorf("store book: %w", err)
	}
	return book, nil
}

// Get returns a book with chapters, or ErrNotFound.
func (s *BookService) Get(ctx context.Context, id string) (*domain.Book, error) {
	book, err := s.books.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return book, nil
}

// List returns stored books without chapter contents.
func (s *BookService) List(ctx context.Context, limit, offset int) ([]domain.Book, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.books.List(ctx, limit, offset)
}
