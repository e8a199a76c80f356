// Package job defines the stateful representation of a render job within
// the tonequeue lifecycle.
//
// A Job is the executable unit derived from exactly one shootout
// (package shootout). It carries state-machine fields -- Status,
// Progress, Attempts, lock information and scheduling timestamps --
// maintained by the Durable Store, Queue Broker and Worker Lease Loop.
//
// Job values are typically returned by Store.LoadJob/Store.ListJobs and
// passed back for state transitions (Store.TransitionJob,
// Store.UpdateJobProgress).
//
// Job is not intended to be constructed manually by user code. Its
// fields reflect the authoritative state stored by the Durable Store.
package job
