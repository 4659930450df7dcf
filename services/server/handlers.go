// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/Aayush-Sood101/BlackBox/services/inference/pipeline"
)

// analyzeResponse acknowledges an accepted analysis request.
type analyzeResponse struct {
	RunID     string `json:"run_id"`
	StatusURL string `json:"status_url"`
	ResultURL string `json:"result_url"`
	StreamURL string `json:"stream_url"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "runs": s.registry.Len()})
}

// handleAnalyze accepts a multipart upload and starts an analysis run.
//
// # Inputs (multipart form)
//
//   - executable: The target binary. Required.
//   - format: Free-text input format description. Optional.
//   - constraints: Free-text constraints description. Optional.
//   - extra_case: Repeatable; extra inputs merged into the batch.
//
// # Outputs
//
// 202 with run ID and follow-up URLs. The run proceeds in the
// background; callers poll the status URL or attach to the stream.
func (s *Server) handleAnalyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)

	file, header, err := c.Request.FormFile("executable")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge,
				gin.H{"error": "uploaded executable exceeds the size limit"})
			return
		}
		c.JSON(http.StatusBadRequest,
			gin.H{"error": "multipart field 'executable' is required"})
		return
	}
	defer file.Close()

	if header.Size > s.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge,
			gin.H{"error": "uploaded executable exceeds the size limit"})
		return
	}

	stagedPath, stagedDir, err := s.stageUpload(file)
	if err != nil {
		s.logger.Error("failed to stage uploaded executable", "error", err)
		c.JSON(http.StatusInternalServerError,
			gin.H{"error": "failed to stage uploaded executable"})
		return
	}

	run := s.pipeline.NewRun()
	s.registry.Put(run)

	req := pipeline.Request{
		ExecutablePath:  stagedPath,
		FormatText:      c.PostForm("format"),
		ConstraintsText: c.PostForm("constraints"),
		ExtraCases:      c.PostFormArray("extra_case"),
	}

	s.logger.Info("analysis accepted",
		"run_id", run.ID, "upload", header.Filename, "size", header.Size)

	// The run outlives the HTTP request; the staged binary outlives
	// the run by nothing.
	go func() {
		defer os.RemoveAll(stagedDir)
		s.pipeline.Run(context.Background(), run, req)
	}()

	c.JSON(http.StatusAccepted, analyzeResponse{
		RunID:     run.ID,
		StatusURL: "/api/v1/runs/" + run.ID,
		ResultURL: "/api/v1/runs/" + run.ID + "/result",
		StreamURL: "/ws/runs/" + run.ID,
	})
}

// stageUpload copies the uploaded binary into a fresh directory with
// the execute bit set. The sandbox re-copies it per execution, so the
// staged file is read-only shared state for the run.
func (s *Server) stageUpload(src io.Reader) (path, dir string, err error) {
	dir, err = os.MkdirTemp(s.uploadRoot, uploadPrefix)
	if err != nil {
		return "", "", err
	}
	path = filepath.Join(dir, "target")
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		os.RemoveAll(dir)
		return "", "", err
	}
	if _, err = io.Copy(out, src); err != nil {
		out.Close()
		os.RemoveAll(dir)
		return "", "", err
	}
	if err = out.Close(); err != nil {
		os.RemoveAll(dir)
		return "", "", err
	}
	return path, dir, nil
}

func (s *Server) handleStatus(c *gin.Context) {
	run, err := s.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run.Status())
}

func (s *Server) handleResult(c *gin.Context) {
	run, err := s.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	result, err := run.Result()
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error": "run still in progress",
			"stage": run.Stage(),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleCancel(c *gin.Context) {
	id := c.Param("id")
	run, err := s.registry.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	run.Cancel()
	s.registry.Delete(id)
	s.logger.Info("run cancelled by caller", "run_id", id)
	c.JSON(http.StatusOK, gin.H{"status": "cancelled", "run_id": id})
}
