package access

import (
	"context"
	"fmt"

	"VcFM/logger"
	"VcFM/repository"
)

// Request 一次房间操作的访问请求
type Request struct {
	Room     string
	UserID   int64
	Op       string
	NeedCall bool // 操作是否要求房间有进行中的通话
}

// Denial 某条检查拒绝了请求
type Denial struct {
	Check  string
	Reason string
}

func (d *Denial) Error() string {
	return fmt.Sprintf("访问被拒绝 [%s]: %s", d.Check, d.Reason)
}

// CallProbe 查询房间当前是否有活跃通话
type CallProbe interface {
	ActiveRooms(ctx context.Context) ([]string, error)
}

// Check 单条访问检查。通过返回 nil，拒绝返回 *Denial，
// 基础设施故障返回其他错误。
type Check interface {
	Name() string
	Evaluate(ctx context.Context, req *Request) error
}

// Pipeline 按固定顺序执行访问检查，第一条拒绝即终止。
// 身份鉴别由外部协作方完成，这里只做房间与操作级别的前置校验。
type Pipeline struct {
	checks []Check
}

// NewPipeline 组装标准检查顺序：房间已注册 → 操作员有权限 → 通话状态满足
func NewPipeline(repo repository.RoomRepository, probe CallProbe) *Pipeline {
	return &Pipeline{
		checks: []Check{
			&roomRegistered{repo: repo},
			&operatorAllowed{repo: repo},
			&callActive{probe: probe},
		},
	}
}

// Authorize 依次执行全部检查
func (p *Pipeline) Authorize(ctx context.Context, req *Request) error {
	for _, c := range p.checks {
		if err := c.Evaluate(ctx, req); err != nil {
			if d, ok := err.(*Denial); ok {
				logger.Info("操作被访问检查拒绝",
					logger.String("room", req.Room),
					logger.String("op", req.Op),
					logger.String("check", d.Check),
					logger.String("reason", d.Reason))
			}
			return err
		}
	}
	return nil
}

// ========== 内置检查 ==========

type roomRegistered struct {
	repo repository.RoomRepository
}

func (c *roomRegistered) Name() string { return "room-registered" }

func (c *roomRegistered) Evaluate(ctx context.Context, req *Request) error {
	exists, err := c.repo.ExistsByID(ctx, req.Room)
	if err != nil {
		return fmt.Errorf("查询房间注册状态失败: %w", err)
	}
	if !exists {
		return &Denial{Check: c.Name(), Reason: "房间未注册或已停用"}
	}
	return nil
}

type operatorAllowed struct {
	repo repository.RoomRepository
}

func (c *operatorAllowed) Name() string { return "operator-allowed" }

func (c *operatorAllowed) Evaluate(ctx context.Context, req *Request) error {
	// UserID 为 0 表示系统内部触发（事件反应等），不做操作员校验
	if req.UserID == 0 {
		return nil
	}
	op, err := c.repo.GetOperator(ctx, req.Room, req.UserID)
	if err != nil {
		return fmt.Errorf("查询房间操作员失败: %w", err)
	}
	if op == nil {
		return &Denial{Check: c.Name(), Reason: "用户不是该房间的操作员"}
	}
	return nil
}

type callActive struct {
	probe CallProbe
}

func (c *callActive) Name() string { return "call-active" }

func (c *callActive) Evaluate(ctx context.Context, req *Request) error {
	if !req.NeedCall {
		return nil
	}
	rooms, err := c.probe.ActiveRooms(ctx)
	if err != nil {
		return fmt.Errorf("查询活跃通话失败: %w", err)
	}
	for _, r := range rooms {
		if r == req.Room {
			return nil
		}
	}
	return &Denial{Check: c.Name(), Reason: "房间没有进行中的通话"}
}
