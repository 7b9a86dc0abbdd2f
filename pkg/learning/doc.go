// Package learning implements the per-agent tabular Q-learning engine:
// epsilon-greedy action selection over a local value table, Bellman updates
// from scalar rewards, episode bookkeeping and batched synchronization with
// a valuestore.Store.
//
// A Learner belongs to one agent instance. Learners never share memory;
// concurrent instances coordinate only through the store's atomic upserts.
//
// Typical use:
//
//	l, err := learning.New(cfg, types.AgentGenerator, "", space, learning.Deps{Store: store})
//	l.Start(ctx)
//	defer l.Stop(ctx)
//
//	decision, err := l.SelectAction(ctx, taskCtx)
//	// execute decision.Action
//	result, err := l.ReportOutcome(ctx, outcome)
package learning
