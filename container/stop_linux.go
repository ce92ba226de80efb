package container

import (
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Stop asks init to power off, or kills it when force is set, and waits
// until init exits. Processes left in the pid namespace are killed by the
// kernel once init is gone. The container can not be used afterwards.
func (c *Container) Stop(force bool) error {
	if err := c.checkLaunched(); err != nil {
		return err
	}
	sig := c.opts.StopSignal
	if sig == 0 {
		sig = SignalPoweroff
	}
	if force {
		sig = syscall.SIGKILL
	}
	logger := logrus.WithFields(logrus.Fields{
		"pid":    c.initPid,
		"signal": sig,
	})
	logger.Info("container: stopping")

	defer c.proc.Close()
	if err := c.proc.Signal(sig); err != nil {
		if err != syscall.ESRCH {
			return errors.Wrapf(err, "container: signal init %d", c.initPid)
		}
		logger.Debug("container: init already exited")
	}
	if err := c.proc.Wait(); err != nil {
		return errors.Wrapf(err, "container: wait init %d", c.initPid)
	}
	if c.init != nil {
		c.init.Wait()
	}
	c.stopped = true
	logger.Info("container: stopped")
	return nil
}
