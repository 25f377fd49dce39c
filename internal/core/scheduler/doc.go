// Package scheduler 提供协作式周期任务调度
//
// 每个周期任务在自己的 goroutine 中串行执行（同一任务不会重叠），
// 通过 Token 取消；所有定时器都来自注入的 clock.Clock，
// 测试中使用 clock.NewMock() 推进模拟时间。
//
//	s := scheduler.New(clock.New())
//	tok, _ := s.Every("health-check", 30*time.Second, func(ctx context.Context) { ... })
//	defer tok.Cancel()
//
// Stop 之后所有任务停止，推进时钟不会再触发任何任务。
package scheduler
