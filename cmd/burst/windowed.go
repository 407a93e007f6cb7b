package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/xlab/closer"

	"github.com/valydumitru01/Burst/internal/config"
	"github.com/valydumitru01/Burst/internal/gpu"
	"github.com/valydumitru01/Burst/internal/gpu/gldevice"
	"github.com/valydumitru01/Burst/internal/profiling"
	"github.com/valydumitru01/Burst/internal/render"
	"github.com/valydumitru01/Burst/internal/render/glrender"
	"github.com/valydumitru01/Burst/internal/streaming"
	"github.com/valydumitru01/Burst/internal/world"
)

const (
	winWidth  = 1280
	winHeight = 720
	flySpeed  = 24.0 // voxels per second
	fastSpeed = 96.0
)

func setupWindow(vsync bool) (*glfw.Window, error) {
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)

	window, err := glfw.CreateWindow(winWidth, winHeight, "burst", nil, nil)
	if err != nil {
		return nil, err
	}
	window.MakeContextCurrent()
	if vsync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}
	window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
	return window, nil
}

func setupInput(window *glfw.Window, cam *render.Camera, sched *streaming.Scheduler, log *slog.Logger) {
	captured := true
	window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		if !captured || action != glfw.Press {
			return
		}
		hit := world.Raycast(sched.Store(), cam.Position, cam.Front(), world.MaxReach)
		if !hit.Found {
			return
		}
		var err error
		switch button {
		case glfw.MouseButtonLeft:
			err = sched.SetVoxel(hit.Hit[0], hit.Hit[1], hit.Hit[2], world.Air)
		case glfw.MouseButtonRight:
			a := hit.Adjacent
			err = sched.SetVoxel(a[0], a[1], a[2], world.Plank)
		}
		if err != nil {
			log.Debug("edit", "err", err)
		}
	})
	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		if captured {
			cam.Look(xpos, ypos)
		}
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeyEscape:
			captured = !captured
			if captured {
				w.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
			} else {
				w.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
			}
		case glfw.KeyEqual, glfw.KeyKPAdd:
			log.Info("load radius", "chunks", config.SetLoadRadius(config.GetLoadRadius()+1))
		case glfw.KeyMinus, glfw.KeyKPSubtract:
			log.Info("load radius", "chunks", config.SetLoadRadius(config.GetLoadRadius()-1))
		case glfw.KeyQ:
			w.SetShouldClose(true)
		}
	})
	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		gl.Viewport(0, 0, int32(width), int32(height))
		cam.SetViewport(width, height)
	})
}

// fly moves the camera from the held keys.
func fly(window *glfw.Window, cam *render.Camera, dt float32) {
	axis := func(pos, neg glfw.Key) float32 {
		var v float32
		if window.GetKey(pos) == glfw.Press {
			v++
		}
		if window.GetKey(neg) == glfw.Press {
			v--
		}
		return v
	}
	speed := float32(flySpeed)
	if window.GetKey(glfw.KeyLeftControl) == glfw.Press {
		speed = fastSpeed
	}
	cam.Move(axis(glfw.KeyW, glfw.KeyS), axis(glfw.KeyD, glfw.KeyA), axis(glfw.KeySpace, glfw.KeyLeftShift), speed*dt)
}

func runWindowed(cfg config.Config, opts options, log *slog.Logger) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("glfw: %w", err)
	}
	var cleanup teardown
	closer.Bind(cleanup.run)
	cleanup.push(glfw.Terminate)

	window, err := setupWindow(opts.vsync)
	if err != nil {
		return fmt.Errorf("window: %w", err)
	}
	if err := gl.Init(); err != nil {
		return fmt.Errorf("gl: %w", err)
	}
	log.Info("opengl", "version", gl.GoStr(gl.GetString(gl.VERSION)), "renderer", gl.GoStr(gl.GetString(gl.RENDERER)))

	dev := gldevice.New(cfg.GPU.MemoryBudget, log)
	pipe, err := streaming.NewPipeline(cfg, dev, dev, log)
	if err != nil {
		return err
	}
	edge := cfg.Chunk.Edge
	renderer, err := glrender.New(dev, edge, float32(cfg.Streaming.LoadRadius*edge))
	if err != nil {
		return err
	}

	ctx := context.Background()
	cleanup.push(func() {
		if err := pipe.Close(ctx); err != nil {
			log.Warn("pipeline close", "err", err)
		}
		live, bytes := dev.Allocated()
		log.Info("shutdown", "buffers", live, "bytes", bytes)
	})
	cleanup.push(renderer.Delete)

	spawn := mgl32.Vec3{0, float32(cfg.Terrain.BaseHeight) + float32(cfg.Terrain.Amplitude), 0}
	cam := render.NewCamera(winWidth, winHeight, spawn)
	setupInput(window, cam, pipe.Scheduler(), log)

	if !opts.vsync {
		config.SetFPSLimit(opts.fps)
	}
	var limiter fpsLimiter
	stats := newFrameLog(log, time.Second)
	last := time.Now()
	for !window.ShouldClose() {
		now := time.Now()
		dt := float32(now.Sub(last).Seconds())
		last = now

		func() { defer profiling.Track("glfw.PollEvents")(); glfw.PollEvents() }()
		fly(window, cam, dt)
		renderer.FogDistance = float32(config.GetLoadRadius() * edge)

		var rs render.Stats
		st, err := pipe.Frame(ctx, cam.Position, config.GetLoadRadius(), func(frame uint64, cmds []gpu.DrawCommand) error {
			defer profiling.Track("render.Draw")()
			var err error
			rs, err = renderer.Draw(frame, cam, cmds)
			return err
		})
		if err != nil {
			return err
		}
		func() { defer profiling.Track("glfw.SwapBuffers")(); window.SwapBuffers() }()
		stats.frame(st, rs)
		limiter.wait()
	}
	return nil
}
