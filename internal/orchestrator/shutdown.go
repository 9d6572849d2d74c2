package orchestrator

import "context"

// Shutdown stops the runtime: a graceful admin shutdown first, then SIGTERM
// and SIGKILL, each escalation gated by the policy. A false answer from the
// policy halts with the process left as it is.
func (o *Orchestrator) Shutdown(ctx context.Context) (ShutdownAttempt, error) {
	l, _ := o.CheckLiveness(ctx)
	if !l.PidAlive && !l.AdminAlive {
		o.logger.Info("nothing to stop, the runtime is not running")
		o.sup.CleanupPid()
		return ShutdownAttempt{Tier: TierGraceful, Stopped: true}, nil
	}
	if !l.PidAlive {
		// no pid to wait for; the admin api is all we can reach
		o.logger.Warn("sending shutdown to an untracked runtime")
		o.rt.Shutdown(ctx, o.cfg.StopTimeout)
		o.sup.CleanupPid()
		a := ShutdownAttempt{Tier: TierGraceful, Stopped: !o.rt.Ping(ctx, o.cfg.PingTimeout)}
		o.obs.ShutdownTier(a)
		return a, nil
	}

	o.logger.Info("waiting for the runtime to shut down")
	a := ShutdownAttempt{Tier: TierGraceful, Stopped: o.sup.Stop(ctx, o.cfg.StopTimeout)}
	o.obs.ShutdownTier(a)
	if a.Stopped {
		o.logger.Info("the runtime has been stopped successfully")
		return a, nil
	}
	o.logger.Warn("the runtime did not shut down by itself yet")

	steps := []struct {
		tier Tier
		run  func() bool
	}{
		{TierTerminate, func() bool { return o.sup.Terminate(o.cfg.TerminateTimeout) }},
		{TierKill, func() bool { return o.sup.Kill(o.cfg.KillTimeout) }},
	}
	for _, step := range steps {
		proceed, err := o.policy.ResolveEscalation(ctx, step.tier)
		if err != nil || !proceed {
			o.logger.Info("leaving the process as it is, use stop again to check whether it disappeared")
			a.Halted = true
			return a, err
		}
		o.logger.Info("signalling the runtime process", "tier", step.tier.String())
		a = ShutdownAttempt{Tier: step.tier, Stopped: step.run()}
		o.obs.ShutdownTier(a)
		if a.Stopped {
			o.logger.Info("the runtime process has been stopped", "tier", step.tier.String())
			return a, nil
		}
	}
	o.logger.Error("stopping the runtime process failed thoroughly")
	return a, nil
}
