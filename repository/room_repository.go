package repository

import (
	"context"
	"time"

	"VcFM/model"

	"gorm.io/gorm"
)

// RoomRepository 房间注册表数据访问接口
type RoomRepository interface {
	// 房间注册
	Register(ctx context.Context, room *model.RegisteredRoom) error
	GetByID(ctx context.Context, id string) (*model.RegisteredRoom, error)
	Disable(ctx context.Context, id string) error
	ExistsByID(ctx context.Context, id string) (bool, error)
	ListActive(ctx context.Context) ([]*model.RegisteredRoom, error)

	// 操作员管理
	AddOperator(ctx context.Context, op *model.RoomOperator) error
	GetOperator(ctx context.Context, roomID string, userID int64) (*model.RoomOperator, error)
	RemoveOperator(ctx context.Context, roomID string, userID int64) error
	ListOperators(ctx context.Context, roomID string) ([]*model.RoomOperator, error)
}

// gormRoomRepository GORM 实现
type gormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GORM 房间仓库
func NewGormRoomRepository(db *gorm.DB) RoomRepository {
	return &gormRoomRepository{db: db}
}

// ========== 房间注册 ==========

// Register 注册房间，已注册过的房间重新激活
func (r *gormRoomRepository) Register(ctx context.Context, room *model.RegisteredRoom) error {
	room.Status = model.RoomStatusActive
	room.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(room).Error
}

// GetByID 根据ID获取激活状态的房间
func (r *gormRoomRepository) GetByID(ctx context.Context, id string) (*model.RegisteredRoom, error) {
	var room model.RegisteredRoom
	err := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, model.RoomStatusActive).
		First(&room).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

// Disable 停用房间
func (r *gormRoomRepository) Disable(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&model.RegisteredRoom{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.RoomStatusDisabled,
			"updated_at": time.Now(),
		}).Error
}

// ExistsByID 检查房间是否已注册且处于激活状态
func (r *gormRoomRepository) ExistsByID(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.RegisteredRoom{}).
		Where("id = ? AND status = ?", id, model.RoomStatusActive).
		Count(&count).Error
	return count > 0, err
}

// ListActive 列出所有激活状态的房间
func (r *gormRoomRepository) ListActive(ctx context.Context) ([]*model.RegisteredRoom, error) {
	var rooms []*model.RegisteredRoom
	err := r.db.WithContext(ctx).
		Where("status = ?", model.RoomStatusActive).
		Order("created_at ASC").
		Find(&rooms).Error
	return rooms, err
}

// ========== 操作员管理 ==========

// AddOperator 添加房间操作员
func (r *gormRoomRepository) AddOperator(ctx context.Context, op *model.RoomOperator) error {
	return r.db.WithContext(ctx).Create(op).Error
}

// GetOperator 获取房间操作员记录，不存在时返回 nil
func (r *gormRoomRepository) GetOperator(ctx context.Context, roomID string, userID int64) (*model.RoomOperator, error) {
	var op model.RoomOperator
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&op).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &op, nil
}

// RemoveOperator 移除房间操作员
func (r *gormRoomRepository) RemoveOperator(ctx context.Context, roomID string, userID int64) error {
	return r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&model.RoomOperator{}).Error
}

// ListOperators 列出房间全部操作员
func (r *gormRoomRepository) ListOperators(ctx context.Context, roomID string) ([]*model.RoomOperator, error) {
	var ops []*model.RoomOperator
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC").
		Find(&ops).Error
	return ops, err
}
