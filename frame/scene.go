package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph/bindless"
	"github.com/gogpu/rendergraph/rhi"
	"github.com/gogpu/rendergraph/storage"
)

// Scene data errors.
var (
	ErrTooManyLights = errors.New("frame: too many lights")
	ErrTooManyJoints = errors.New("frame: too many joints in skeleton")
	ErrCapacity      = errors.New("frame: reserved space exhausted")
)

// Default scene limits.
const (
	DefaultMaxLights     = 256
	DefaultMaxJoints     = 32
	DefaultMaxShadowMaps = 16
	DefaultReservedSpace = 10000
)

// SceneLimits sizes the buffers of a SceneData.
type SceneLimits struct {
	// MaxLights bounds directional and point lights, each.
	// Defaults to DefaultMaxLights if zero.
	MaxLights uint32

	// MaxJoints bounds the joints of one skeleton.
	// Defaults to DefaultMaxJoints if zero.
	MaxJoints uint32

	// MaxShadowMaps bounds the shadow cascades of all lights together.
	// Defaults to DefaultMaxShadowMaps if zero.
	MaxShadowMaps uint32

	// ReservedSpace bounds the meshes of one frame.
	// Defaults to DefaultReservedSpace if zero.
	ReservedSpace uint32
}

func (l SceneLimits) withDefaults() SceneLimits {
	if l.MaxLights == 0 {
		l.MaxLights = DefaultMaxLights
	}
	if l.MaxJoints == 0 {
		l.MaxJoints = DefaultMaxJoints
	}
	if l.MaxShadowMaps == 0 {
		l.MaxShadowMaps = DefaultMaxShadowMaps
	}
	if l.ReservedSpace == 0 {
		l.ReservedSpace = DefaultReservedSpace
	}
	return l
}

// Mat4 is a column-major 4x4 matrix.
type Mat4 = [16]float32

// Vec4 is a four component vector.
type Vec4 = [4]float32

// Camera is the per-frame camera uniform.
type Camera struct {
	Projection     Mat4
	View           Mat4
	ViewProjection Mat4
	// Exposure holds aperture, shutter speed and sensitivity in x, y, z.
	Exposure Vec4
}

// DirectionalLight is a light infinitely far away.
type DirectionalLight struct {
	Direction [3]float32
	Intensity float32
	Color     Vec4
}

// PointLight is a light at a position.
type PointLight struct {
	Position  [3]float32
	Intensity float32
	Range     float32
	Color     Vec4
}

// ShadowCascade is one cascade of a directional light's shadow map.
type ShadowCascade struct {
	Matrix        Mat4
	SplitDistance float32
	Soft          bool
}

// Environment lighting modes stored in the scene uniform.
const (
	EnvironmentNone    uint32 = 0
	EnvironmentColor   uint32 = 1
	EnvironmentTexture uint32 = 2
)

type directionalLightData struct {
	Data   Vec4
	Color  Vec4
	Shadow [4]uint32
}

type pointLightData struct {
	Data  Vec4
	Range Vec4
	Color Vec4
}

type shadowMapData struct {
	Matrix Mat4
	Data   Vec4
}

// sceneUniform: Data holds directional count, point count, unused and the
// environment mode; Textures holds irradiance, specular, BRDF lookup and
// shadow map handles.
type sceneUniform struct {
	Data     [4]uint32
	Textures [4]uint32
	Color    Vec4
}

type skyboxUniform struct {
	Data  [4]uint32
	Color Vec4
}

// SceneBuffers are the device buffers of a SceneData.
type SceneBuffers struct {
	Camera            rhi.BufferHandle
	Scene             rhi.BufferHandle
	Skybox            rhi.BufferHandle
	DirectionalLights rhi.BufferHandle
	PointLights       rhi.BufferHandle
	ShadowMaps        rhi.BufferHandle
	MeshTransforms    rhi.BufferHandle
	Skeletons         rhi.BufferHandle
}

// SceneData is the data of one frame the scene passes read. Keep one per
// frame in flight in a Ring.
type SceneData struct {
	storage *storage.Storage
	limits  SceneLimits
	buffers SceneBuffers
	params  *bindless.DrawParameters

	camera      Camera
	scene       sceneUniform
	skybox      skyboxUniform
	directional []directionalLightData
	point       []pointLightData
	shadowMaps  []shadowMapData
	transforms  []Mat4
	skeletons   []Mat4
	skinned     uint32
}

// NewSceneData creates the buffers of one frame's scene data.
func NewSceneData(s *storage.Storage, limits SceneLimits) (*SceneData, error) {
	limits = limits.withDefaults()
	d := &SceneData{
		storage:     s,
		limits:      limits,
		params:      bindless.New(s.Limits()),
		directional: make([]directionalLightData, 0, limits.MaxLights),
		point:       make([]pointLightData, 0, limits.MaxLights),
		shadowMaps:  make([]shadowMapData, 0, limits.MaxShadowMaps),
		transforms:  make([]Mat4, 0, limits.ReservedSpace),
	}

	storageUsage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	uniformUsage := gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
	mat4 := uint64(binary.Size(Mat4{}))
	specs := []struct {
		dst   *rhi.BufferHandle
		label string
		usage gputypes.BufferUsage
		size  uint64
	}{
		{&d.buffers.Camera, "Camera", uniformUsage, uint64(binary.Size(Camera{}))},
		{&d.buffers.Scene, "Scene", uniformUsage, uint64(binary.Size(sceneUniform{}))},
		{&d.buffers.Skybox, "Skybox", uniformUsage, uint64(binary.Size(skyboxUniform{}))},
		{&d.buffers.DirectionalLights, "Directional lights", storageUsage,
			uint64(limits.MaxLights) * uint64(binary.Size(directionalLightData{}))},
		{&d.buffers.PointLights, "Point lights", storageUsage,
			uint64(limits.MaxLights) * uint64(binary.Size(pointLightData{}))},
		{&d.buffers.ShadowMaps, "Shadow maps", storageUsage,
			uint64(limits.MaxShadowMaps) * uint64(binary.Size(shadowMapData{}))},
		{&d.buffers.MeshTransforms, "Mesh transforms", storageUsage, uint64(limits.ReservedSpace) * mat4},
		{&d.buffers.Skeletons, "Skeletons", storageUsage,
			uint64(limits.ReservedSpace) * uint64(limits.MaxJoints) * mat4},
	}
	for _, spec := range specs {
		h, err := s.CreateBuffer(rhi.BufferDescription{Label: spec.label, Usage: spec.usage, Size: spec.size})
		if err != nil {
			d.Destroy()
			return nil, fmt.Errorf("frame: scene buffer %q: %w", spec.label, err)
		}
		*spec.dst = h
	}
	return d, nil
}

// Limits returns the limits the data was created with, defaults applied.
func (d *SceneData) Limits() SceneLimits { return d.limits }

// Buffers returns the device buffers.
func (d *SceneData) Buffers() SceneBuffers { return d.buffers }

// Params returns the per-draw parameters of the frame. Clear releases them.
func (d *SceneData) Params() *bindless.DrawParameters { return d.params }

// SetCamera sets the camera uniform.
func (d *SceneData) SetCamera(c Camera) { d.camera = c }

// AddMesh appends the transform of a static mesh and returns its index in
// the transforms buffer.
func (d *SceneData) AddMesh(transform Mat4) (uint32, error) {
	if uint32(len(d.transforms)) >= d.limits.ReservedSpace {
		return 0, fmt.Errorf("%w: %d meshes", ErrCapacity, d.limits.ReservedSpace)
	}
	d.transforms = append(d.transforms, transform)
	return uint32(len(d.transforms) - 1), nil
}

// AddSkinnedMesh appends a mesh transform and its skeleton and returns the
// index of the skeleton. Skeletons occupy MaxJoints matrices each; missing
// joints are identity.
func (d *SceneData) AddSkinnedMesh(transform Mat4, joints []Mat4) (uint32, error) {
	if uint32(len(joints)) > d.limits.MaxJoints {
		return 0, fmt.Errorf("%w: %d > %d", ErrTooManyJoints, len(joints), d.limits.MaxJoints)
	}
	if d.skinned >= d.limits.ReservedSpace {
		return 0, fmt.Errorf("%w: %d skeletons", ErrCapacity, d.limits.ReservedSpace)
	}
	if _, err := d.AddMesh(transform); err != nil {
		return 0, err
	}
	d.skeletons = append(d.skeletons, joints...)
	for range d.limits.MaxJoints - uint32(len(joints)) {
		d.skeletons = append(d.skeletons, identity)
	}
	d.skinned++
	return d.skinned - 1, nil
}

var identity = Mat4{0: 1, 5: 1, 10: 1, 15: 1}

// AddDirectionalLight adds a light without shadows.
func (d *SceneData) AddDirectionalLight(l DirectionalLight) error {
	return d.addDirectional(l, [4]uint32{})
}

// AddDirectionalLightWithShadows adds a light casting shadows through the
// given cascades. When the cascades do not fit in the remaining shadow
// maps the light is added without shadows.
func (d *SceneData) AddDirectionalLightWithShadows(l DirectionalLight, cascades []ShadowCascade) error {
	if uint32(len(d.directional)) >= d.limits.MaxLights {
		return fmt.Errorf("%w: %d directional", ErrTooManyLights, d.limits.MaxLights)
	}
	first := uint32(len(d.shadowMaps))
	n := uint32(len(cascades))
	if first+n > d.limits.MaxShadowMaps {
		return d.addDirectional(l, [4]uint32{0, first, n, 0})
	}
	for _, c := range cascades {
		soft := float32(0)
		if c.Soft {
			soft = 1
		}
		d.shadowMaps = append(d.shadowMaps, shadowMapData{Matrix: c.Matrix, Data: Vec4{-c.SplitDistance, soft}})
	}
	return d.addDirectional(l, [4]uint32{1, first, n, 0})
}

func (d *SceneData) addDirectional(l DirectionalLight, shadow [4]uint32) error {
	if uint32(len(d.directional)) >= d.limits.MaxLights {
		return fmt.Errorf("%w: %d directional", ErrTooManyLights, d.limits.MaxLights)
	}
	d.directional = append(d.directional, directionalLightData{
		Data:   Vec4{l.Direction[0], l.Direction[1], l.Direction[2], l.Intensity},
		Color:  l.Color,
		Shadow: shadow,
	})
	d.scene.Data[0] = uint32(len(d.directional))
	return nil
}

// AddPointLight adds a point light.
func (d *SceneData) AddPointLight(l PointLight) error {
	if uint32(len(d.point)) >= d.limits.MaxLights {
		return fmt.Errorf("%w: %d point", ErrTooManyLights, d.limits.MaxLights)
	}
	d.point = append(d.point, pointLightData{
		Data:  Vec4{l.Position[0], l.Position[1], l.Position[2], l.Intensity},
		Range: Vec4{l.Range, l.Range, l.Range, l.Range},
		Color: l.Color,
	})
	d.scene.Data[1] = uint32(len(d.point))
	return nil
}

// SetEnvironmentTextures lights the scene from prefiltered maps.
func (d *SceneData) SetEnvironmentTextures(irradiance, specular rhi.TextureHandle) {
	d.scene.Data[3] = EnvironmentTexture
	d.scene.Textures[0] = uint32(irradiance)
	d.scene.Textures[1] = uint32(specular)
}

// SetEnvironmentColor lights the scene with a constant color.
func (d *SceneData) SetEnvironmentColor(c Vec4) {
	d.scene.Data[3] = EnvironmentColor
	d.scene.Color = c
}

// SetBRDFLookupTable sets the BRDF lookup texture. Clear keeps it.
func (d *SceneData) SetBRDFLookupTable(h rhi.TextureHandle) { d.scene.Textures[2] = uint32(h) }

// SetShadowMapTexture sets the shadow map array texture.
func (d *SceneData) SetShadowMapTexture(h rhi.TextureHandle) { d.scene.Textures[3] = uint32(h) }

// SetSkyboxTexture sets the skybox cubemap.
func (d *SceneData) SetSkyboxTexture(h rhi.TextureHandle) { d.skybox.Data[0] = uint32(h) }

// SetSkyboxColor sets the skybox color used without a cubemap.
func (d *SceneData) SetSkyboxColor(c Vec4) { d.skybox.Color = c }

// NumLights returns the number of directional lights.
func (d *SceneData) NumLights() uint32 { return d.scene.Data[0] }

// NumPointLights returns the number of point lights.
func (d *SceneData) NumPointLights() uint32 { return d.scene.Data[1] }

// NumShadowMaps returns the number of shadow cascades.
func (d *SceneData) NumShadowMaps() int { return len(d.shadowMaps) }

// NumMeshes returns the number of mesh transforms.
func (d *SceneData) NumMeshes() int { return len(d.transforms) }

// Update uploads everything added since the last Clear and builds the
// draw parameters if any were added.
func (d *SceneData) Update() error {
	uploads := []struct {
		buffer rhi.BufferHandle
		value  any
	}{
		{d.buffers.Camera, d.camera},
		{d.buffers.Scene, d.scene},
		{d.buffers.Skybox, d.skybox},
		{d.buffers.DirectionalLights, d.directional},
		{d.buffers.PointLights, d.point},
		{d.buffers.ShadowMaps, d.shadowMaps},
		{d.buffers.MeshTransforms, d.transforms},
		{d.buffers.Skeletons, d.skeletons},
	}
	var buf bytes.Buffer
	for _, u := range uploads {
		buf.Reset()
		if err := binary.Write(&buf, binary.LittleEndian, u.value); err != nil {
			return fmt.Errorf("frame: encode scene data: %w", err)
		}
		if buf.Len() == 0 {
			continue
		}
		if err := d.storage.WriteBuffer(u.buffer, 0, buf.Bytes()); err != nil {
			return fmt.Errorf("frame: upload scene data: %w", err)
		}
	}

	if !d.params.Built() && len(d.params.Ranges()) > 0 {
		if err := d.params.Build(d.storage); err != nil {
			return err
		}
	}
	return nil
}

// Clear drops everything added for the frame and releases the draw
// parameters. The camera, shadow map texture and BRDF lookup table are
// kept.
func (d *SceneData) Clear() {
	d.directional = d.directional[:0]
	d.point = d.point[:0]
	d.shadowMaps = d.shadowMaps[:0]
	d.transforms = d.transforms[:0]
	d.skeletons = d.skeletons[:0]
	d.skinned = 0

	d.scene.Data = [4]uint32{}
	d.scene.Textures[0], d.scene.Textures[1] = 0, 0
	d.scene.Color = Vec4{}
	d.skybox = skyboxUniform{}

	d.params.Destroy(d.storage)
}

// Destroy releases the buffers and draw parameters.
func (d *SceneData) Destroy() {
	d.params.Destroy(d.storage)
	for _, h := range []rhi.BufferHandle{
		d.buffers.Camera, d.buffers.Scene, d.buffers.Skybox,
		d.buffers.DirectionalLights, d.buffers.PointLights, d.buffers.ShadowMaps,
		d.buffers.MeshTransforms, d.buffers.Skeletons,
	} {
		if h != rhi.InvalidHandle {
			d.storage.DestroyBuffer(h)
		}
	}
	d.buffers = SceneBuffers{}
}
