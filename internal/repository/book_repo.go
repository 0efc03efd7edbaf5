package repository

import (
	"context"
	"errors"

	"bookstore/internal/model"

	"gorm.io/gorm"
)

var ErrBookNotFound = errors.New("书目不存在")

// BookRepository 目录协作方：只读当前价格和上架状态
type BookRepository interface {
	GetByID(ctx context.Context, bookID int64) (*model.Book, error)
	GetByIDs(ctx context.Context, bookIDs []int64) (map[int64]*model.Book, error)
}

type GormBookRepository struct {
	db *gorm.DB
}

func NewGormBookRepository(db *gorm.DB) BookRepository {
	return &GormBookRepository{db: db}
}

func (r *GormBookRepository) GetByID(ctx context.Context, bookID int64) (*model.Book, error) {
	var book model.Book
	err := r.db.WithContext(ctx).Where("id = ?", bookID).First(&book).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return &book, nil
}

func (r *GormBookRepository) GetByIDs(ctx context.Context, bookIDs []int64) (map[int64]*model.Book, error) {
	var books []*model.Book
	err := r.db.WithContext(ctx).Where("id IN ?", bookIDs).Find(&books).Error
	if err != nil {
		return nil, err
	}

	result := make(map[int64]*model.Book, len(books))
	for _, b := range books {
		result[b.ID] = b
	}
	return result, nil
}
