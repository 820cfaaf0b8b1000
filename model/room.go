package model

import "time"

// Rule 播放推进规则
type Rule string

const (
	RuleQueue     Rule = "queue"      // 顺序播放到队尾停止
	RuleRepeat    Rule = "repeat"     // 循环整个队列
	RuleRepeatOne Rule = "repeat-one" // 单曲循环
	RuleShuffle   Rule = "shuffle"    // 随机播放
)

// Rules 规则的循环切换顺序（播放器按钮逐个轮换）
var Rules = []Rule{RuleQueue, RuleRepeat, RuleRepeatOne, RuleShuffle}

// CycleRule 返回 r 的下一个规则，未知规则回到 queue
func CycleRule(r Rule) Rule {
	for i, rule := range Rules {
		if rule == r {
			return Rules[(i+1)%len(Rules)]
		}
	}
	return RuleQueue
}

// PlayStatus 播放状态
type PlayStatus string

const (
	StatusPlay  PlayStatus = "play"
	StatusPause PlayStatus = "pause"
)

// 房间注册状态
const (
	RoomStatusActive   = "active"
	RoomStatusDisabled = "disabled"
)

// 操作员角色
const (
	OperatorRoleOwner = "owner"
	OperatorRoleAdmin = "admin"
)

// RegisteredRoom 已接入的房间（MySQL 持久化）。
// 只有注册且处于 active 状态的房间才接受队列操作。
type RegisteredRoom struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Title     string    `json:"title" gorm:"size:100"`
	Status    string    `json:"status" gorm:"size:20;default:'active';index"` // active, disabled
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (RegisteredRoom) TableName() string {
	return "registered_rooms"
}

// RoomOperator 房间操作员（可以操作播放队列的用户）
type RoomOperator struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	RoomID    string    `json:"roomId" gorm:"size:32;index;not null"`
	UserID    int64     `json:"userId" gorm:"index;not null"`
	Role      string    `json:"role" gorm:"size:20;default:'admin'"` // owner, admin
	CreatedAt time.Time `json:"createdAt"`
}

// TableName 指定表名
func (RoomOperator) TableName() string {
	return "room_operators"
}
