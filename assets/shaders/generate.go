// Package shaders holds the GLSL sources of the renderer. The compiled
// SPIR-V files are loaded from this directory at runtime.
package shaders

//go:generate glslc vertexShader.vert -o vertexShader.spv
//go:generate glslc fragmentShader.frag -o fragmentShader.spv
//go:generate glslc computeShader.comp -o computeShader.spv
