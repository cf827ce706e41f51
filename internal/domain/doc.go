// Package domain contains the core business entities of packer-server: tasks
// with their lifecycle state machine, image references and users. It is
// independent of storage, transport and the container runtime.
package domain
