package chromecam

// capturePage hosts the media stream. Every entry point resolves to a plain object so
// failures surface as values instead of rejected promises.
const capturePage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>capture</title></head>
<body>
<video id="preview" autoplay playsinline muted></video>
<script>
window.scanner = (function () {
  let stream = null;
  const video = document.getElementById('preview');
  const fail = (e) => ({ok: false, name: (e && e.name) || 'Error', message: (e && e.message) || String(e)});
  const videoTrack = () => stream ? stream.getVideoTracks()[0] : null;

  return {
    async open(facing, width, height) {
      try {
        if (!navigator.mediaDevices || !navigator.mediaDevices.getUserMedia) {
          return {ok: false, name: 'NotSupportedError', message: 'media capture unavailable'};
        }
        stream = await navigator.mediaDevices.getUserMedia({
          video: {facingMode: {ideal: facing}, width: {ideal: width}, height: {ideal: height}},
          audio: false,
        });
        video.srcObject = stream;
        await video.play();
        return {ok: true, tracks: stream.getTracks().length};
      } catch (e) {
        return fail(e);
      }
    },

    focusModes() {
      const track = videoTrack();
      if (!track || typeof track.getCapabilities !== 'function') {
        return {ok: true, modes: []};
      }
      const caps = track.getCapabilities();
      return {ok: true, modes: Array.isArray(caps.focusMode) ? caps.focusMode : []};
    },

    async applyFocus(mode, point) {
      const track = videoTrack();
      if (!track) {
        return {ok: false, name: 'InvalidStateError', message: 'no live video track'};
      }
      const constraint = {focusMode: mode};
      if (point) {
        constraint.pointsOfInterest = [point];
      }
      try {
        await track.applyConstraints({advanced: [constraint]});
        return {ok: true};
      } catch (e) {
        return fail(e);
      }
    },

    snapshot() {
      if (!stream || video.videoWidth === 0) {
        return {ok: false, name: 'InvalidStateError', message: 'no frame available'};
      }
      const canvas = document.createElement('canvas');
      canvas.width = video.videoWidth;
      canvas.height = video.videoHeight;
      canvas.getContext('2d').drawImage(video, 0, 0, canvas.width, canvas.height);
      return {ok: true, dataUrl: canvas.toDataURL('image/png')};
    },

    stopTrack(index) {
      if (!stream) {
        return {ok: true};
      }
      const track = stream.getTracks()[index];
      if (track) {
        track.stop();
      }
      return {ok: true};
    },
  };
})();
</script>
</body>
</html>
`
