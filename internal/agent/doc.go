// Package agent supervises the USB I/O agent when dockd is configured to
// manage it.
//
// The agent is the privileged helper that watches the USB bus, publishes
// hotplug events and answers lock, reboot and link-state requests over MQTT.
// Deployments that run it under their own service manager leave supervision
// disabled.
//
// A supervised agent runs in its own process group. Unexpected exits are
// restarted with exponential backoff; a run that lasts longer than the
// stable threshold resets the backoff.
//
//	sup, err := agent.New(agent.Config{Binary: "/usr/libexec/dockd-usb-agent"})
//	if err != nil {
//	    return err
//	}
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
package agent
