// Command framedemo renders a swaying textured model into an SDL2 window
// through the frame orchestrator.
//
//	framedemo -vert vert.spv -frag frag.spv [-model room.obj -mtl room.mtl] [-texture room.png]
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"

	"github.com/vkngwrapper/framepacer"
	"github.com/vkngwrapper/framepacer/command"
	"github.com/vkngwrapper/framepacer/driver"
	"github.com/vkngwrapper/framepacer/frame"
	"github.com/vkngwrapper/framepacer/scene"
	"github.com/vkngwrapper/framepacer/swapchain"
	"github.com/vkngwrapper/framepacer/target"
	"github.com/vkngwrapper/framepacer/vulkan"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}

type options struct {
	vertexShader   string
	fragmentShader string
	model          string
	material       string
	texture        string
	samples        int
	frames         int
	validation     bool
	verbose        bool
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.vertexShader, "vert", "shaders/vert.spv", "SPIR-V vertex shader")
	flag.StringVar(&opts.fragmentShader, "frag", "shaders/frag.spv", "SPIR-V fragment shader")
	flag.StringVar(&opts.model, "model", "", "Wavefront OBJ model; the built-in quads when empty")
	flag.StringVar(&opts.material, "mtl", "", "material library of the model")
	flag.StringVar(&opts.texture, "texture", "", "PNG texture; white when empty")
	flag.IntVar(&opts.samples, "samples", int(driver.Samples4), "requested MSAA sample count")
	flag.IntVar(&opts.frames, "frames", 2, "frames in flight")
	flag.BoolVar(&opts.validation, "validation", true, "enable the Khronos validation layer")
	flag.BoolVar(&opts.verbose, "v", false, "log debug messages")
	flag.Parse()
	return opts
}

type app struct {
	opts   options
	logger *slog.Logger

	window         *sdl.Window
	globalDriver   core1_0.GlobalDriver
	instanceDriver core1_0.CoreInstanceDriver
	debugDriver    ext_debug_utils.ExtensionDriver
	debugMessenger ext_debug_utils.DebugUtilsMessenger

	surface   *vulkan.Surface
	device    *vulkan.Device
	pool      *command.Pool
	swapchain *swapchain.Swapchain
	targets   *target.Set
	model     *scene.Model
	frames    *frame.Orchestrator
}

func (a *app) run() error {
	if err := a.initWindow(); err != nil {
		return err
	}
	defer func() {
		a.window.Destroy()
		sdl.Quit()
	}()

	assets, err := loadAssets(context.Background(), a.opts)
	if err != nil {
		return err
	}

	defer a.cleanup()
	if err := a.initVulkan(assets); err != nil {
		return err
	}
	return a.mainLoop()
}

func (a *app) initWindow() error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return errors.Wrap(err, "init sdl")
	}

	window, err := sdl.CreateWindow("framedemo", sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, 800, 600, sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return errors.Wrap(err, "create window")
	}
	a.window = window

	a.globalDriver, err = core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	return errors.Wrap(err, "load vulkan")
}

func (a *app) drawableSize() driver.Extent {
	w, h := a.window.VulkanGetDrawableSize()
	return driver.Extent{Width: int(w), Height: int(h)}
}

func (a *app) initVulkan(assets *assets) error {
	if err := a.createInstance(); err != nil {
		return err
	}
	if err := a.setupDebugMessenger(); err != nil {
		return err
	}

	surfaceExt := khr_surface.CreateExtensionDriverFromCoreDriver(a.instanceDriver)
	handle, err := vkng_sdl2.CreateSurface(a.instanceDriver.Instance(), surfaceExt, a.window)
	if err != nil {
		return errors.Wrap(err, "create surface")
	}
	a.surface = vulkan.NewSurface(surfaceExt, handle)

	a.device, err = vulkan.NewDevice(a.instanceDriver, a.surface, a.logger)
	if err != nil {
		return err
	}

	cfg := frame.DefaultConfig()
	cfg.FramesInFlight = a.opts.frames
	cfg.Samples = driver.SampleCount(a.opts.samples)
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.pool, err = command.NewPool(a.device, a.device.GraphicsQueue())
	if err != nil {
		return err
	}
	a.swapchain, err = swapchain.New(a.device, a.surface, a.drawableSize(), cfg.SwapchainOptions())
	if err != nil {
		return err
	}
	a.targets, err = target.New(a.device, a.swapchain, cfg.TargetOptions())
	if err != nil {
		return err
	}
	a.model, err = scene.NewModel(a.device, a.pool, a.targets, a.swapchain, scene.Config{
		Mesh:    assets.mesh,
		Texture: assets.texture,
		Shaders: assets.shaders,
		Slots:   cfg.FramesInFlight,
	})
	if err != nil {
		return err
	}
	a.frames, err = frame.New(a.device, a.swapchain, a.targets, a.pool, a.model, cfg)
	return err
}

func (a *app) createInstance() error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    "framedemo",
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "framepacer",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := a.window.VulkanGetInstanceExtensions()
	extensions, _, err := a.globalDriver.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "list instance extensions")
	}
	for _, ext := range sdlExtensions {
		if _, hasExt := extensions[ext]; !hasExt {
			return errors.Newf("missing instance extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if a.opts.validation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	if _, ok := extensions[khr_portability_enumeration.ExtensionName]; ok {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if a.opts.validation {
		layers, _, err := a.globalDriver.AvailableLayers()
		if err != nil {
			return errors.Wrap(err, "list instance layers")
		}
		for _, layer := range validationLayers {
			if _, ok := layers[layer]; !ok {
				return errors.Newf("validation layer %s not available, install the Vulkan SDK or pass -validation=false", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}
		instanceOptions.Next = a.debugMessengerOptions()
	}

	a.instanceDriver, _, err = a.globalDriver.CreateInstance(nil, instanceOptions)
	return errors.Wrap(err, "create instance")
}

func (a *app) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    a.logDebug,
	}
}

func (a *app) setupDebugMessenger() error {
	if !a.opts.validation {
		return nil
	}
	var err error
	a.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(a.instanceDriver)
	a.debugMessenger, _, err = a.debugDriver.CreateDebugUtilsMessenger(nil, a.debugMessengerOptions())
	return errors.Wrap(err, "create debug messenger")
}

func (a *app) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	level := slog.LevelWarn
	if severity&ext_debug_utils.SeverityError != 0 {
		level = slog.LevelError
	}
	a.logger.Log(context.Background(), level, data.Message, "type", msgType)
	return false
}

// mainLoop forwards window events to the orchestrator and ticks until the
// window is closed.
func (a *app) mainLoop() error {
	for {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				a.frames.Post(frame.CloseEvent{})
			case *sdl.WindowEvent:
				switch e.Event {
				case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED, sdl.WINDOWEVENT_MINIMIZED, sdl.WINDOWEVENT_RESTORED:
					size := a.drawableSize()
					a.frames.Post(frame.ResizeEvent{Width: size.Width, Height: size.Height})
				}
			case *sdl.MouseButtonEvent:
				a.frames.Post(frame.PointerEvent{
					X:       int(e.X),
					Y:       int(e.Y),
					Button:  int(e.Button),
					Pressed: e.State == sdl.PRESSED,
				})
			}
		}

		err := a.frames.Tick()
		if errors.Is(err, frame.ErrClosed) {
			stats := a.frames.Stats()
			a.logger.Info("done", "presented", stats.Presented, "skipped", stats.Skipped, "resizes", stats.Resizes)
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// cleanup tears down in reverse creation order. Every step tolerates a
// partially initialized app.
func (a *app) cleanup() {
	if a.frames != nil {
		if err := a.frames.Destroy(); err != nil {
			a.logger.Error("close frame loop", "error", err)
		}
	} else if a.device != nil {
		_ = a.device.WaitIdle()
	}
	if a.model != nil {
		a.model.Destroy()
	}
	if a.targets != nil {
		a.targets.Destroy()
	}
	if a.swapchain != nil {
		a.swapchain.Destroy()
	}
	if a.pool != nil {
		a.pool.Destroy()
	}
	if a.device != nil {
		a.device.Destroy()
	}
	if a.debugMessenger.Initialized() {
		a.debugDriver.DestroyDebugUtilsMessenger(a.debugMessenger, nil)
	}
	if a.surface != nil {
		a.surface.Destroy()
	}
	if a.instanceDriver != nil {
		a.instanceDriver.DestroyInstance(nil)
	}
}

func main() {
	runtime.LockOSThread()
	opts := parseFlags()

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	framepacer.SetLogger(logger)

	a := &app{opts: opts, logger: logger}
	if err := a.run(); err != nil {
		log.Fatalf("%+v\n", err)
	}
}
