package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Gopher0727/ProjectChat/internal/authz"
	"github.com/Gopher0727/ProjectChat/internal/events"
	"github.com/Gopher0727/ProjectChat/internal/models"
	"github.com/Gopher0727/ProjectChat/internal/repositories"
	logger "github.com/Gopher0727/ProjectChat/middleware/log"
)

const (
	maxNameLen        = 255
	maxDescriptionLen = 1000
	maxContentLen     = 10000
	maxEmojiLen       = 50
	maxCustomStatus   = 255
	maxSearchLen      = 500
	maxBulkMembers    = 100

	defaultPageSize = 50
	maxPageSize     = 100

	DefaultEditWindow     = 24 * time.Hour
	DefaultPresenceWindow = 5 * time.Minute
)

// Deps 所有聊天服务共享的依赖
type Deps struct {
	Store  repositories.Store
	Oracle authz.Oracle
	Events events.Publisher
	IDs    events.IDGenerator
	Clock  func() time.Time
	Logger *logger.Logger
}

func (d Deps) now() time.Time {
	if d.Clock == nil {
		return time.Now().UTC()
	}
	return d.Clock().UTC()
}

func (d Deps) log() *logger.Logger {
	if d.Logger == nil {
		return logger.Nop()
	}
	return d.Logger
}

func (d Deps) publish(ctx context.Context, ev events.Event) {
	if d.Events != nil {
		d.Events.Publish(ctx, ev)
	}
}

// authorize 询问权限预言机，拒绝时包装为 ErrPermission
func (d Deps) authorize(ctx context.Context, userID int64, action authz.Action, res authz.Resource) error {
	if err := d.Oracle.Authorize(ctx, userID, action, res); err != nil {
		return fmt.Errorf("%w: %w", ErrPermission, err)
	}
	return nil
}

// readableChannel 返回活跃频道以及 actor 的成员行（可能为 nil）。
// 私有频道对非成员表现为不存在。
func (d Deps) readableChannel(ctx context.Context, store repositories.Store, channelID, actor int64) (*models.Channel, *models.ChatMember, error) {
	ch, err := store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, nil, storeErr(err, "channel")
	}
	member, err := activeMember(ctx, store, channelID, actor)
	if err != nil {
		return nil, nil, err
	}
	if ch.IsPrivate && member == nil {
		return nil, nil, notFoundErr("channel")
	}
	return ch, member, nil
}

// activeMember 返回活跃成员行；不存在或已失效时返回 nil, nil
func activeMember(ctx context.Context, store repositories.Store, channelID, employeeID int64) (*models.ChatMember, error) {
	m, err := store.GetMember(ctx, channelID, employeeID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !m.IsActive() {
		return nil, nil
	}
	return m, nil
}

func validateText(field, value string, minLen, maxLen int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	if n < minLen {
		return validationErr("%s must not be empty", field)
	}
	if utf8.RuneCountInString(value) > maxLen {
		return validationErr("%s must be at most %d characters", field, maxLen)
	}
	return nil
}

func validateContent(content string) error {
	return validateText("content", content, 1, maxContentLen)
}

func validateMessageType(t string) (string, error) {
	if t == "" {
		return models.MessageTypeText, nil
	}
	if !models.ValidMessageType(t) {
		return "", validationErr("invalid message type %q", t)
	}
	return t, nil
}

// Pagination 分页参数，page 从 1 开始
type Pagination struct {
	Page     int `form:"page" json:"page"`
	PageSize int `form:"page_size" json:"page_size"`
}

func (p Pagination) normalize() (Pagination, repositories.Page) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	return p, repositories.Page{Offset: (p.Page - 1) * p.PageSize, Limit: p.PageSize}
}

// PageResult 分页结果
type PageResult[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

func newPageResult[T any](items []T, total int64, p Pagination) *PageResult[T] {
	if items == nil {
		items = []T{}
	}
	pages := int((total + int64(p.PageSize) - 1) / int64(p.PageSize))
	return &PageResult[T]{Items: items, Total: total, Page: p.Page, PageSize: p.PageSize, TotalPages: pages}
}

func sortDesc(order string, defaultDesc bool) (bool, error) {
	switch strings.ToLower(order) {
	case "":
		return defaultDesc, nil
	case "desc":
		return true, nil
	case "asc":
		return false, nil
	}
	return false, validationErr("sort order must be asc or desc")
}
