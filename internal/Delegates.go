package internal

import "context"

// Update is a progress event pushed by the pipelines. Counters inside
// successive events are not totally ordered between workers; consumers should
// display the running maximum.
type Update interface {
	isUpdate()
}

type CheckingFreeSpace struct{ Path string }

type DownloadingStarted struct{ Path string }

type DownloadingProgressBytes struct{ Downloaded, Total uint64 }

type DownloadingProgressFiles struct{ Downloaded, Total uint64 }

type DownloadingFinished struct{}

type DownloadingError struct{ Err error }

type PatchingStarted struct{}

type PatchingProgress struct{ Patched, Total uint64 }

type PatchingFinished struct{}

type PatchingError struct{ Err error }

type DeletingStarted struct{}

type DeletingProgress struct{ Deleted, Total uint64 }

type DeletingFinished struct{}

type FileHashCheckFailed struct{ Path string }

type VerifyingStarted struct{}

type VerifyingProgress struct{ Total, Checked uint64 }

type VerifyingFinished struct{ Broken uint64 }

type RepairingStarted struct{}

type RepairingProgress struct{ Total, Repaired uint64 }

type RepairingFinished struct{}

func (CheckingFreeSpace) isUpdate()        {}
func (DownloadingStarted) isUpdate()       {}
func (DownloadingProgressBytes) isUpdate() {}
func (DownloadingProgressFiles) isUpdate() {}
func (DownloadingFinished) isUpdate()      {}
func (DownloadingError) isUpdate()         {}
func (PatchingStarted) isUpdate()          {}
func (PatchingProgress) isUpdate()         {}
func (PatchingFinished) isUpdate()         {}
func (PatchingError) isUpdate()            {}
func (DeletingStarted) isUpdate()          {}
func (DeletingProgress) isUpdate()         {}
func (DeletingFinished) isUpdate()         {}
func (FileHashCheckFailed) isUpdate()      {}
func (VerifyingStarted) isUpdate()         {}
func (VerifyingProgress) isUpdate()        {}
func (VerifyingFinished) isUpdate()        {}
func (RepairingStarted) isUpdate()         {}
func (RepairingProgress) isUpdate()        {}
func (RepairingFinished) isUpdate()        {}

// DelegateUpdate is the progress sink handed to a pipeline. It is called
// concurrently from worker goroutines and must be safe for that.
type DelegateUpdate func(update Update)

func (d DelegateUpdate) send(update Update) {
	if d != nil {
		d(update)
	}
}

// ChannelUpdater adapts a channel into a DelegateUpdate. Sends block until the
// consumer receives or ctx is done, after which events are dropped.
func ChannelUpdater(ctx context.Context, ch chan<- Update) DelegateUpdate {
	return func(update Update) {
		select {
		case ch <- update:
		case <-ctx.Done():
		}
	}
}
