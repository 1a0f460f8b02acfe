package frame

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/rendergraph/bindless"
	"github.com/gogpu/rendergraph/rhi"
	"github.com/gogpu/rendergraph/rhi/mock"
	"github.com/gogpu/rendergraph/storage"
)

var small = SceneLimits{MaxLights: 4, MaxJoints: 2, MaxShadowMaps: 3, ReservedSpace: 8}

func newScene(t *testing.T, limits SceneLimits) (*SceneData, *mock.Device) {
	t.Helper()
	dev := mock.New()
	st, err := storage.New(dev, storage.Config{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(st.Destroy)
	d, err := NewSceneData(st, limits)
	if err != nil {
		t.Fatalf("NewSceneData() error = %v", err)
	}
	t.Cleanup(d.Destroy)
	return d, dev
}

func TestSceneLimitsDefaults(t *testing.T) {
	got := SceneLimits{}.withDefaults()
	want := SceneLimits{MaxLights: 256, MaxJoints: 32, MaxShadowMaps: 16, ReservedSpace: 10000}
	if got != want {
		t.Errorf("defaults = %+v, want %+v", got, want)
	}
}

func TestSceneBufferSizes(t *testing.T) {
	d, dev := newScene(t, small)
	b := d.Buffers()
	tests := []struct {
		name   string
		buffer rhi.BufferHandle
		size   int
	}{
		{"camera", b.Camera, 3*64 + 16},
		{"scene", b.Scene, 48},
		{"skybox", b.Skybox, 32},
		{"directional", b.DirectionalLights, 4 * 48},
		{"point", b.PointLights, 4 * 48},
		{"shadow maps", b.ShadowMaps, 3 * 80},
		{"transforms", b.MeshTransforms, 8 * 64},
		{"skeletons", b.Skeletons, 8 * 2 * 64},
	}
	for _, tt := range tests {
		buf, ok := dev.Buffers[tt.buffer]
		if !ok {
			t.Errorf("%s buffer not created", tt.name)
			continue
		}
		if len(buf.Data) != tt.size {
			t.Errorf("%s buffer size = %d, want %d", tt.name, len(buf.Data), tt.size)
		}
	}
}

func TestSceneLights(t *testing.T) {
	d, dev := newScene(t, small)

	sun := DirectionalLight{Direction: [3]float32{0, -1, 0}, Intensity: 3, Color: Vec4{1, 1, 1, 1}}
	cascades := []ShadowCascade{{SplitDistance: 10}, {SplitDistance: 50, Soft: true}}
	if err := d.AddDirectionalLightWithShadows(sun, cascades); err != nil {
		t.Fatal(err)
	}
	// Two more cascades do not fit in three shadow maps.
	if err := d.AddDirectionalLightWithShadows(sun, cascades); err != nil {
		t.Fatal(err)
	}
	if err := d.AddPointLight(PointLight{Position: [3]float32{1, 2, 3}, Intensity: 5, Range: 7}); err != nil {
		t.Fatal(err)
	}
	if d.NumLights() != 2 || d.NumPointLights() != 1 || d.NumShadowMaps() != 2 {
		t.Fatalf("lights %d/%d shadow maps %d", d.NumLights(), d.NumPointLights(), d.NumShadowMaps())
	}

	if err := d.Update(); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	lights := dev.Buffers[d.Buffers().DirectionalLights].Data
	if got := math.Float32frombits(binary.LittleEndian.Uint32(lights[12:])); got != 3 {
		t.Errorf("intensity = %v, want 3", got)
	}
	shadow := func(light, i int) uint32 {
		return binary.LittleEndian.Uint32(lights[light*48+32+i*4:])
	}
	if shadow(0, 0) != 1 || shadow(0, 1) != 0 || shadow(0, 2) != 2 {
		t.Errorf("first light shadow = %d %d %d, want 1 0 2", shadow(0, 0), shadow(0, 1), shadow(0, 2))
	}
	if shadow(1, 0) != 0 {
		t.Error("second light casts shadows without room for its cascades")
	}

	maps := dev.Buffers[d.Buffers().ShadowMaps].Data
	if got := math.Float32frombits(binary.LittleEndian.Uint32(maps[80+64:])); got != -50 {
		t.Errorf("second cascade split = %v, want -50", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(maps[80+68:])); got != 1 {
		t.Errorf("second cascade soft = %v, want 1", got)
	}

	scene := dev.Buffers[d.Buffers().Scene].Data
	if binary.LittleEndian.Uint32(scene[0:]) != 2 || binary.LittleEndian.Uint32(scene[4:]) != 1 {
		t.Error("scene uniform light counts not uploaded")
	}
}

func TestSceneLimitsEnforced(t *testing.T) {
	d, _ := newScene(t, small)

	for range small.MaxLights {
		if err := d.AddPointLight(PointLight{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := d.AddPointLight(PointLight{}); !errors.Is(err, ErrTooManyLights) {
		t.Errorf("AddPointLight over limit error = %v, want ErrTooManyLights", err)
	}
	if _, err := d.AddSkinnedMesh(identity, make([]Mat4, 3)); !errors.Is(err, ErrTooManyJoints) {
		t.Errorf("AddSkinnedMesh error = %v, want ErrTooManyJoints", err)
	}
	for range small.ReservedSpace {
		if _, err := d.AddMesh(identity); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := d.AddMesh(identity); !errors.Is(err, ErrCapacity) {
		t.Errorf("AddMesh over reserved space error = %v, want ErrCapacity", err)
	}
}

func TestSceneSkeletonPadding(t *testing.T) {
	d, dev := newScene(t, small)

	joint := Mat4{0: 2}
	if _, err := d.AddMesh(identity); err != nil {
		t.Fatal(err)
	}
	idx, err := d.AddSkinnedMesh(identity, []Mat4{joint})
	if err != nil || idx != 0 {
		t.Fatalf("AddSkinnedMesh() = %d, %v", idx, err)
	}
	if d.NumMeshes() != 2 {
		t.Errorf("NumMeshes() = %d, want 2", d.NumMeshes())
	}
	if err := d.Update(); err != nil {
		t.Fatal(err)
	}

	skeletons := dev.Buffers[d.Buffers().Skeletons].Data
	if got := math.Float32frombits(binary.LittleEndian.Uint32(skeletons[0:])); got != 2 {
		t.Errorf("joint 0 = %v, want 2", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(skeletons[64:])); got != 1 {
		t.Errorf("padding joint = %v, want identity", got)
	}
}

func TestSceneClear(t *testing.T) {
	d, dev := newScene(t, small)
	live := dev.Live()

	d.SetBRDFLookupTable(9)
	d.SetEnvironmentTextures(3, 4)
	d.SetSkyboxTexture(5)
	if err := d.AddPointLight(PointLight{}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.AddMesh(identity); err != nil {
		t.Fatal(err)
	}
	if _, err := bindless.AddRange(d.Params(), uint32(1)); err != nil {
		t.Fatal(err)
	}
	if err := d.Update(); err != nil {
		t.Fatal(err)
	}
	if !d.Params().Built() {
		t.Fatal("Update() did not build the draw parameters")
	}

	d.Clear()
	if d.NumPointLights() != 0 || d.NumMeshes() != 0 || d.Params().Built() {
		t.Error("Clear() kept frame data")
	}
	if dev.Live() != live {
		t.Errorf("live objects after Clear = %d, want %d", dev.Live(), live)
	}
	if d.scene.Textures != [4]uint32{0, 0, 9, 0} || d.scene.Data[3] != EnvironmentNone {
		t.Errorf("scene uniform after Clear = %+v, want only the BRDF table kept", d.scene)
	}
	if d.skybox.Data[0] != 0 {
		t.Error("Clear() kept the skybox texture")
	}
}

func TestSceneRing(t *testing.T) {
	dev := mock.New()
	st, err := storage.New(dev, storage.Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Destroy()

	ring, err := NewRing(func(uint32) (*SceneData, error) {
		return NewSceneData(st, small)
	}, (*SceneData).Destroy)
	if err != nil {
		t.Fatal(err)
	}
	if ring.Slot(0).Buffers().Camera == ring.Slot(1).Buffers().Camera {
		t.Error("frames in flight share a camera buffer")
	}
	ring.Each(func(_ uint32, d *SceneData) { d.Destroy() })
}
