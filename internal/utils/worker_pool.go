package utils

import (
	"sync"

	"go.uber.org/zap"

	logger "github.com/Gopher0727/ProjectChat/middleware/log"
)

// WorkerPool 通用协程池，事件分发器用它执行监听器
type WorkerPool struct {
	jobs      chan func()
	workerNum int
	logger    *logger.Logger
	wg        sync.WaitGroup
	quit      chan struct{}
	stopOnce  sync.Once
}

// NewWorkerPool 创建一个新的协程池
func NewWorkerPool(workerNum, queueSize int, log *logger.Logger) *WorkerPool {
	if workerNum <= 0 {
		workerNum = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &WorkerPool{
		jobs:      make(chan func(), queueSize),
		workerNum: workerNum,
		logger:    log.Named("worker_pool"),
		quit:      make(chan struct{}),
	}
}

// Start 启动协程池
func (p *WorkerPool) Start() {
	for i := 0; i < p.workerNum; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.workerNum), zap.Int("queue", cap(p.jobs)))
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case job := <-p.jobs:
			p.run(id, job)
		case <-p.quit:
			// 退出前把队列中剩余的任务执行完
			for {
				select {
				case job := <-p.jobs:
					p.run(id, job)
				default:
					return
				}
			}
		}
	}
}

// run 使用 recover 防止单个任务 panic 导致 worker 挂掉
func (p *WorkerPool) run(id int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker job panicked", zap.Int("worker", id), zap.Any("panic", r))
		}
	}()
	job()
}

// Submit 提交任务，队列已满时阻塞
func (p *WorkerPool) Submit(job func()) {
	p.jobs <- job
}

// TrySubmit 非阻塞提交，队列已满返回 false
func (p *WorkerPool) TrySubmit(job func()) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Stop 停止协程池并等待所有 worker 退出
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}
