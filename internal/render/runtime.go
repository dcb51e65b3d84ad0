package render

import (
	"strings"
	"sync"

	"vimagination.zapto.org/quantum/internal/source"
)

// The runtime is written against $fsx; the name is replaced when a build
// uses another one.
const runtimeRequire = `
$fsx.f = $fsx.f || {};
$fsx.m = $fsx.m || {};
$fsx.r = function(id) {
	if (typeof id === "string" && $fsx.mp && $fsx.mp[id] !== undefined) {
		id = $fsx.mp[id];
	}
	var cached = $fsx.m[id];
	if (cached) {
		return cached.exports;
	}
	var factory = $fsx.f[id];
	if (!factory) {
		throw new Error("module " + id + " not found");
	}
	var module = $fsx.m[id] = {id: id, exports: {}};
	factory.call(module.exports, module, module.exports);
	return module.exports;
};
`

const runtimeComputed = `
$fsx.c = function(file, p) {
	var base = [], k, i;
	if (p.charAt(0) === "." || p.substr(0, 2) === "~/") {
		for (k in $fsx.p) {
			if ($fsx.p[k] === file) {
				base = k.split("/");
				base.pop();
				break;
			}
		}
		if (p.charAt(0) === "~") {
			base = base.slice(0, 1);
			p = p.substr(2);
		}
	}
	var parts = p.split("/");
	for (i = 0; i < parts.length; i++) {
		if (parts[i] === "..") {
			base.pop();
		} else if (parts[i] !== "." && parts[i] !== "") {
			base.push(parts[i]);
		}
	}
	var full = base.join("/"), ext = ["", ".js", ".jsx", ".json", ".css", "/index.js", "/index.jsx"];
	for (i = 0; i < ext.length; i++) {
		if ($fsx.p[full + ext[i]] !== undefined) {
			return $fsx.r($fsx.p[full + ext[i]]);
		}
	}
	return $fsx.r(full);
};
`

const runtimeLoader = `
$fsx.l = function(id) {
	return new Promise(function(resolve, reject) {
		if ($fsx.m[id] || $fsx.f[id]) {
			return resolve($fsx.r(id));
		}
		var file = $fsx.s && $fsx.s[id];
		if (!file) {
			return reject(new Error("no bundle holds module " + id));
		}
		if (typeof document === "object") {
			var script = document.createElement("script");
			script.src = file;
			script.onload = function() {
				resolve($fsx.r(id));
			};
			script.onerror = reject;
			document.head.appendChild(script);
		} else {
			require(require("path").join(__dirname, file));
			resolve($fsx.r(id));
		}
	});
};
`

var (
	compactOnce sync.Once
	compacted   [3]string
	compactErr  error
)

// runtimeJS returns the compacted runtime, with the computed-require
// dispatcher only when asked for.
func runtimeJS(variable string, computed bool) (string, error) {
	compactOnce.Do(func() {
		for n, src := range [...]string{runtimeRequire, runtimeComputed, runtimeLoader} {
			if compacted[n], compactErr = source.Compact(src); compactErr != nil {
				return
			}
		}
	})

	if compactErr != nil {
		return "", compactErr
	}

	js := compacted[0]

	if computed {
		js += compacted[1]
	}

	js += compacted[2]

	if variable != "$fsx" {
		js = strings.ReplaceAll(js, "$fsx", variable)
	}

	return js, nil
}
