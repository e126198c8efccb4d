package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/storyscope/storyscope/internal/service"
)

// BookHandler handles manuscript intake endpoints.
type BookHandler struct {
	bookService *service.BookService
}

// NewBookHandler creates a new book handler.
// Parameters:
//   - bookService: book service instance.
// Returns:
//   - *BookHandler: initialized handler.
func NewBookHandler(bookService *service.BookService) *BookHandler {
	return &BookHandler{bookService: bookService}
}

// Create handles POST /api/v1/books.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *BookHandler) Create(c *gin.Context) {
	var input service.BookInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	book, err := h.bookService.Create(c.Request.Context(), &input)
	if err != nil {
		if errors.Is(err, service.ErrEmptyBook) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store book: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, book)
}

// Get handles GET /api/v1/books/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *BookHandler) Get(c *gin.Context) {
	book, err := h.bookService.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load book: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, book)
}

// List handles GET /api/v1/books.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *BookHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	books, err := h.bookService.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list books: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"books": books,
		"count": len(books),
	})
}
