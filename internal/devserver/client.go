package devserver

// clientScript reconnects to the dev server socket and swaps updated
// stylesheets in place. Pages load it with
// <script src="/stylepack-client.js"></script>.
const clientScript = `(function () {
  var url = (location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/stylepack-socket";
  function refresh(names) {
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    for (var i = 0; i < links.length; i++) {
      var href = new URL(links[i].href);
      var file = href.pathname.replace(/^\//, "");
      if (names.some(function (n) { return file === n || file.slice(-n.length - 1) === "/" + n; })) {
        href.searchParams.set("t", Date.now());
        links[i].href = href.toString();
      }
    }
  }
  function connect() {
    var socket = new WebSocket(url);
    var ping = setInterval(function () { socket.readyState === 1 && socket.send("ping"); }, 10000);
    socket.onmessage = function (event) {
      var message = JSON.parse(event.data);
      if (message.type === "css-update") refresh(message.data.split(","));
      else if (message.type === "reload") location.reload();
      else if (message.type === "errors") console.error("[stylepack]\n" + message.data);
    };
    socket.onclose = function () { clearInterval(ping); setTimeout(connect, 1000); };
  }
  connect();
})();
`
