package workers

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/camden-git/annotationsys/media"
)

type ThumbnailJob struct {
	ImageID              string
	OriginalRelativePath string
}

// ResultRecorder persists the outcome of a thumbnail job.
type ResultRecorder interface {
	UpdateThumbnailResult(id string, thumbPath *string, taskErr error) error
}

// ThumbnailOption configures a ThumbnailGenerator.
type ThumbnailOption func(*ThumbnailGenerator)

// WithOnDone registers a callback invoked after every finished job.
func WithOnDone(fn func(job ThumbnailJob, thumbPath string, err error)) ThumbnailOption {
	return func(tg *ThumbnailGenerator) { tg.onDone = fn }
}

type ThumbnailGenerator struct {
	JobQueue  chan ThumbnailJob
	Processor *media.Processor
	Recorder  ResultRecorder
	MaxSize   int
	Wg        sync.WaitGroup
	StopChan  chan struct{}
	Pending   map[string]bool
	Mutex     sync.Mutex

	onDone   func(job ThumbnailJob, thumbPath string, err error)
	stopOnce sync.Once
}

func NewThumbnailGenerator(processor *media.Processor, recorder ResultRecorder, maxSize, queueSize, numWorkers int, opts ...ThumbnailOption) *ThumbnailGenerator {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	if maxSize <= 0 {
		maxSize = 300
	}

	gen := &ThumbnailGenerator{
		JobQueue:  make(chan ThumbnailJob, queueSize),
		Processor: processor,
		Recorder:  recorder,
		MaxSize:   maxSize,
		StopChan:  make(chan struct{}),
		Pending:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(gen)
	}

	gen.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go gen.worker(i)
	}
	log.Infof("workers: started %d thumbnail worker(s) with queue size %d", numWorkers, queueSize)

	return gen
}

func (tg *ThumbnailGenerator) worker(id int) {
	defer tg.Wg.Done()
	log.Debugf("workers: thumbnail worker %d started", id)
	for {
		select {
		case job, ok := <-tg.JobQueue:
			if !ok {
				log.Debugf("workers: thumbnail worker %d stopping: job queue closed", id)
				return
			}
			log.WithFields(log.Fields{"worker": id, "image": job.ImageID}).Debug("workers: processing thumbnail job")
			tg.processJob(job)
			tg.Mutex.Lock()
			delete(tg.Pending, job.ImageID)
			tg.Mutex.Unlock()

		case <-tg.StopChan:
			log.Debugf("workers: thumbnail worker %d stopping: stop signal received", id)
			return
		}
	}
}

func (tg *ThumbnailGenerator) processJob(job ThumbnailJob) {
	var thumbPathPtr *string
	thumbPath, taskErr := tg.Processor.ThumbnailFromFile(job.OriginalRelativePath, tg.MaxSize)
	if taskErr != nil {
		log.Errorf("workers: thumbnail generation failed for %s: %v", job.ImageID, taskErr)
	} else {
		thumbPathPtr = &thumbPath
	}

	if tg.Recorder != nil {
		if err := tg.Recorder.UpdateThumbnailResult(job.ImageID, thumbPathPtr, taskErr); err != nil {
			log.Errorf("workers: failed to record thumbnail result for %s: %v", job.ImageID, err)
		}
	}
	if tg.onDone != nil {
		tg.onDone(job, thumbPath, taskErr)
	}
}

// QueueJob enqueues a job unless one for the same image is already pending
// or the queue is full.
func (tg *ThumbnailGenerator) QueueJob(job ThumbnailJob) bool {
	tg.Mutex.Lock()
	if tg.Pending[job.ImageID] {
		tg.Mutex.Unlock()
		log.Debugf("workers: thumbnail for %s already pending, skipping queue", job.ImageID)
		return false
	}
	tg.Pending[job.ImageID] = true
	tg.Mutex.Unlock()

	select {
	case tg.JobQueue <- job:
		return true
	default:
		log.Warnf("workers: thumbnail job queue full, dropping job for %s", job.ImageID)
		tg.Mutex.Lock()
		delete(tg.Pending, job.ImageID)
		tg.Mutex.Unlock()
		return false
	}
}

func (tg *ThumbnailGenerator) Stop() {
	tg.stopOnce.Do(func() {
		log.Info("workers: stopping thumbnail generator...")
		close(tg.StopChan)
		tg.Wg.Wait()
		log.Info("workers: all thumbnail workers stopped")
	})
}
