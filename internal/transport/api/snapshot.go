package api

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"hordestream.ai/internal/persistence/snapshot"
)

func (h *handlers) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.snaps.Dir == "" {
		writeError(w, "snapshots not configured", http.StatusServiceUnavailable)
		return
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		writeError(w, "forbidden", http.StatusForbidden)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	es, err := h.engine.RequestSnapshot(ctx, 0)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	snap, err := snapshot.FromEngine(es, h.snaps.EngineID, h.snaps.Seed, h.snaps.Index)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	path := filepath.Join(h.snaps.Dir, snapshot.FileName(snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if h.snaps.OnWrite != nil {
		h.snaps.OnWrite(path)
	}
	writeJSON(w, map[string]any{"ok": true, "tick": snap.Header.Tick, "path": path, "agents": len(snap.Agents), "cells": len(snap.Cells)})
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
