package renderer

const globeVertexShader = `
#version 410 core

layout (location = 0) in vec3 aPos;
layout (location = 1) in vec2 aTexCoord;

uniform mat4 uViewProj;
uniform vec3 uOffset;
uniform vec3 uBias;

out vec2 vNormalUV;
out vec3 vRelPos;

void main() {
	vec3 p = aPos + uOffset;
	vRelPos = p;
	vNormalUV = (aTexCoord + uBias.xy) * uBias.z;
	gl_Position = uViewProj * vec4(p, 1.0);
}
`

const globeFragmentShader = `
#version 410 core

in vec2 vNormalUV;
in vec3 vRelPos;

uniform sampler2D uNormalMap;
uniform bool uHasNormalMap;
uniform vec3 uEye;
uniform vec3 uLightDir;
uniform vec3 uColor;

out vec4 FragColor;

void main() {
	vec3 n;
	if (uHasNormalMap) {
		n = normalize(texture(uNormalMap, vNormalUV).rgb * 2.0 - 1.0);
	} else {
		n = normalize(vRelPos + uEye);
	}
	float diffuse = max(dot(n, uLightDir), 0.0);
	FragColor = vec4(uColor * (0.25 + 0.75 * diffuse), 1.0);
}
`

const normalMapVertexShader = `
#version 410 core

layout (location = 0) in vec2 aPos;
layout (location = 1) in vec3 aNormal;

out vec3 vNormal;

void main() {
	vNormal = aNormal;
	gl_Position = vec4(aPos, 0.0, 1.0);
}
`

const normalMapFragmentShader = `
#version 410 core

in vec3 vNormal;
out vec4 FragColor;

void main() {
	FragColor = vec4(normalize(vNormal) * 0.5 + 0.5, 1.0);
}
`

// Five-tap Gaussian along uStep, with linear sampling folding nine texels into
// five fetches. Texels on the border ring are copied unblurred.
const normalMapBlurVertexShader = `
#version 410 core

layout (location = 0) in vec2 aPos;

out vec2 vUV;

void main() {
	vUV = aPos * 0.5 + 0.5;
	gl_Position = vec4(aPos, 0.0, 1.0);
}
`

const normalMapBlurFragmentShader = `
#version 410 core

in vec2 vUV;

uniform sampler2D uSource;
uniform vec2 uStep;
uniform vec3 uWeights;
uniform vec2 uOffsets;

out vec4 FragColor;

void main() {
	if (vUV.x <= 0.01 || vUV.x >= 0.99 || vUV.y <= 0.01 || vUV.y >= 0.99) {
		FragColor = texture(uSource, vUV);
		return;
	}
	vec4 sum = texture(uSource, vUV) * uWeights.x;
	sum += texture(uSource, vUV + uStep * uOffsets.x) * uWeights.y;
	sum += texture(uSource, vUV - uStep * uOffsets.x) * uWeights.y;
	sum += texture(uSource, vUV + uStep * uOffsets.y) * uWeights.z;
	sum += texture(uSource, vUV - uStep * uOffsets.y) * uWeights.z;
	FragColor = vec4(normalize(sum.rgb * 2.0 - 1.0) * 0.5 + 0.5, 1.0);
}
`
