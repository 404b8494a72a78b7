/*
Package watch implements strata's Watch Service: a process-wide, non-blocking
publisher that streams post-commit key/value updates to subscribers filtered
by regular expressions — one over verifiable (UTF-8) keys, one over
non-verifiable (raw byte) keys.

Subscribers never see uncommitted writes: the Commit Pipeline calls Publish
exactly once per successful commit, after the backend write batch lands. A
single dispatch goroutine serializes delivery so that, for any one
subscriber, entries arrive in (version, key) order. A subscriber whose buffer
fills is dropped rather than allowed to stall delivery to everyone else, and
Publish itself never blocks the committer.

	svc := watch.NewService()
	svc.Start()
	defer svc.Stop()

	entries, unsubscribe, err := svc.Subscribe(`^ibc/`, "")
	defer unsubscribe()
	for e := range entries {
		fmt.Println(e.Version, e.KV.Key, e.KV.Deleted)
	}
*/
package watch
